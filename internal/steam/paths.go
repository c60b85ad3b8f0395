// Пакет steam — резолвер метаданных платформы Steam: пользователи
// (config/loginusers.vdf), каталог приложений (appcache/appinfo.vdf),
// shortcut-приложения пользователей (userdata/{id3}/config/shortcuts.vdf)
// и пути к каталогам скриншотов.
package steam

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// id64Base — аддитивное смещение между SteamID64 и коротким
// идентификатором аккаунта (id3).
const id64Base = 76561197960265728

// ID64ToID3 возвращает короткий идентификатор аккаунта (имя каталога
// в userdata/).
func ID64ToID3(id64 uint64) uint64 {
	return id64 - id64Base
}

// ID64ToID возвращает самую короткую форму идентификатора.
func ID64ToID(id64 uint64) uint64 {
	return (id64 - id64Base) / 2
}

// ID3ToID64 возвращает 64-битную форму идентификатора.
func ID3ToID64(id3 uint64) uint64 {
	return id3 + id64Base
}

// DefaultRoot возвращает корневой каталог Steam по умолчанию:
// $HOME/.steam/root (Linux/Steam Deck).
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".steam", "root")
}

// Paths — канонизированные пути внутри корневого каталога Steam.
// Корень разыменовывается при создании (~/.steam/root обычно симлинк),
// чтобы проверки принадлежности путей корню работали по реальному
// расположению.
type Paths struct {
	root string
}

// NewPaths создаёт Paths, канонизируя корневой каталог.
func NewPaths(root string) (*Paths, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("корневой каталог Steam %s недоступен: %w", root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("корневой каталог Steam %s недоступен: %w", resolved, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("корневой каталог Steam %s не является каталогом", resolved)
	}
	return &Paths{root: resolved}, nil
}

// Root возвращает канонизированный корень Steam.
func (p *Paths) Root() string {
	return p.root
}

// LoginUsersFile — путь к манифесту пользователей.
func (p *Paths) LoginUsersFile() string {
	return filepath.Join(p.root, "config", "loginusers.vdf")
}

// AppInfoFile — путь к каталогу приложений.
func (p *Paths) AppInfoFile() string {
	return filepath.Join(p.root, "appcache", "appinfo.vdf")
}

// UserDir — каталог пользователя в userdata/.
func (p *Paths) UserDir(id3 uint64) string {
	return filepath.Join(p.root, "userdata", strconv.FormatUint(id3, 10))
}

// ShortcutsFile — путь к shortcut-приложениям пользователя.
func (p *Paths) ShortcutsFile(id3 uint64) string {
	return filepath.Join(p.UserDir(id3), "config", "shortcuts.vdf")
}

// RemoteDir — каталог облачных данных пользователя; подкаталоги —
// приложения, по которым есть скриншоты.
func (p *Paths) RemoteDir(id3 uint64) string {
	return filepath.Join(p.UserDir(id3), "760", "remote")
}

// ScreenshotsDir — каталог скриншотов пары (пользователь, приложение).
func (p *Paths) ScreenshotsDir(id3 uint64, appID uint32) string {
	return filepath.Join(p.RemoteDir(id3), strconv.FormatUint(uint64(appID), 10), "screenshots")
}

// ThumbnailsDir — каталог готовых миниатюр Steam для пары
// (пользователь, приложение).
func (p *Paths) ThumbnailsDir(id3 uint64, appID uint32) string {
	return filepath.Join(p.ScreenshotsDir(id3, appID), "thumbnails")
}
