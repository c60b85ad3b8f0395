// resolver.go — резолвер метаданных: пользователи, каталог приложений,
// shortcut-приложения. Загружается один раз при старте процесса,
// далее читается конкурентно без изменений; резолв AppInfo ленивый,
// с LRU-кэшем на время жизни процесса.
package steam

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bigkaa/screenshot-server/internal/domain/model"
	"github.com/bigkaa/screenshot-server/internal/vdf"
)

// Ошибки резолвера.
var (
	// ErrUserNotFound — пользователь не обнаружен на машине.
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrAppNotFound — приложение отсутствует и в каталоге,
	// и в shortcuts пользователя.
	ErrAppNotFound = errors.New("приложение не найдено")
)

// steamAppID — служебный идентификатор самого клиента Steam:
// под ним лежат скриншоты, снятые вне игр.
const steamAppID = 7

// appCacheSize — ёмкость LRU-кэша резолва AppInfo.
const appCacheSize = 512

// appCacheKey — ключ кэша: shortcut-приложения различаются
// по пользователям.
type appCacheKey struct {
	id3   uint64
	appID uint32
}

// Resolver — резолвер метаданных Steam. После Load потокобезопасен
// для конкурентного чтения.
type Resolver struct {
	paths  *Paths
	logger *slog.Logger

	mu        sync.RWMutex
	ready     bool
	users     map[uint64]*model.User           // id3 → пользователь
	apps      map[uint32]*vdf.App              // каталог приложений
	shortcuts map[uint64]map[uint32]string     // id3 → appid → имя
	cache     *lru.Cache[appCacheKey, *model.AppInfo]
}

// NewResolver создаёт резолвер. Для заполнения вызовите Load.
func NewResolver(paths *Paths, logger *slog.Logger) *Resolver {
	cache, _ := lru.New[appCacheKey, *model.AppInfo](appCacheSize)
	return &Resolver{
		paths:     paths,
		logger:    logger.With(slog.String("component", "resolver")),
		users:     make(map[uint64]*model.User),
		apps:      make(map[uint32]*vdf.App),
		shortcuts: make(map[uint64]map[uint32]string),
		cache:     cache,
	}
}

// Load читает каталог приложений, манифест пользователей и shortcuts.
// Ошибка чтения каталога фатальна; ошибки разбора манифеста одного
// пользователя или его shortcuts изолируются (скип + лог) и не мешают
// резолву остальных.
func (r *Resolver) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.paths.AppInfoFile())
	if err != nil {
		return fmt.Errorf("чтение appinfo.vdf: %w", err)
	}
	catalog, err := vdf.ParseAppInfo(data)
	if err != nil {
		return fmt.Errorf("разбор appinfo.vdf: %w", err)
	}
	r.apps = catalog.Apps
	r.logger.Info("Каталог приложений загружен",
		slog.Int("apps", len(r.apps)),
		slog.String("version", fmt.Sprintf("%#x", catalog.Version)),
	)

	r.users = r.loadUsers()
	r.logger.Info("Пользователи загружены", slog.Int("users", len(r.users)))

	r.shortcuts = make(map[uint64]map[uint32]string, len(r.users))
	for id3 := range r.users {
		r.shortcuts[id3] = r.loadShortcuts(id3)
	}

	r.ready = true
	return nil
}

// Ready возвращает true после успешного Load.
func (r *Resolver) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Users возвращает пользователей, отсортированных по времени
// последней активности (свежие первые), при равенстве — по id64.
func (r *Resolver) Users() []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].ID64 < result[j].ID64
	})
	return result
}

// User возвращает пользователя по id3.
func (r *Resolver) User(id3 uint64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id3]
	if !ok {
		return nil, fmt.Errorf("id3 %d: %w", id3, ErrUserNotFound)
	}
	copied := *u
	return &copied, nil
}

// ResolveApp возвращает метаданные приложения для пользователя.
// Порядок поиска: заглушка Steam (id 7) → каталог → shortcuts
// пользователя. Отсутствие во всех источниках — ErrAppNotFound.
func (r *Resolver) ResolveApp(id3 uint64, appID uint32) (*model.AppInfo, error) {
	key := appCacheKey{id3: id3, appID: appID}
	if cached, ok := r.cache.Get(key); ok {
		copied := *cached
		return &copied, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.users[id3]; !ok {
		return nil, fmt.Errorf("id3 %d: %w", id3, ErrUserNotFound)
	}

	info, err := r.resolveAppLocked(id3, appID)
	if err != nil {
		return nil, err
	}

	r.cache.Add(key, info)
	copied := *info
	return &copied, nil
}

// UnknownApp возвращает заглушку для приложения, о котором нет
// никаких метаданных, но каталог скриншотов существует.
func UnknownApp(appID uint32) *model.AppInfo {
	return model.NewAppInfo(appID, fmt.Sprintf("Unknown App %d", appID))
}

// AppsForUser возвращает приложения, по которым у пользователя есть
// каталог скриншотов. Отсутствие каталога 760/remote — валидное
// состояние (пустой список).
func (r *Resolver) AppsForUser(id3 uint64) ([]model.AppInfo, error) {
	if _, err := r.User(id3); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.paths.RemoteDir(id3))
	if err != nil {
		if os.IsNotExist(err) {
			return []model.AppInfo{}, nil
		}
		return nil, fmt.Errorf("чтение каталога скриншотов: %w", err)
	}

	result := make([]model.AppInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		appID64, perr := strconv.ParseUint(entry.Name(), 10, 32)
		if perr != nil {
			continue // не-числовые каталоги не являются приложениями
		}
		appID := uint32(appID64)

		info, rerr := r.ResolveApp(id3, appID)
		if rerr != nil {
			if errors.Is(rerr, ErrAppNotFound) {
				info = UnknownApp(appID)
			} else {
				return nil, rerr
			}
		}
		result = append(result, *info)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// resolveAppLocked — резолв под уже взятым RLock.
func (r *Resolver) resolveAppLocked(id3 uint64, appID uint32) (*model.AppInfo, error) {
	if appID == steamAppID {
		return model.NewAppInfo(appID, "Steam"), nil
	}

	if app, ok := r.apps[appID]; ok {
		if info := catalogAppInfo(app); info != nil {
			return info, nil
		}
		r.logger.Warn("Запись каталога без имени, пробуем shortcuts",
			slog.Uint64("app_id", uint64(appID)),
		)
	}

	if name, ok := r.shortcuts[id3][appID]; ok {
		info := model.NewAppInfo(appID, name)
		info.NonSteam = true
		return info, nil
	}

	return nil, fmt.Errorf("app %d: %w", appID, ErrAppNotFound)
}

// catalogAppInfo преобразует запись каталога в AppInfo.
// Возвращает nil, если у записи нет даже канонического имени.
func catalogAppInfo(app *vdf.App) *model.AppInfo {
	name, err := app.KeyValues.String("appinfo", "common", "name")
	if err != nil {
		return nil
	}

	info := model.NewAppInfo(app.ID, name)

	if localized, lerr := app.KeyValues.Child("appinfo", "common", "name_localized"); lerr == nil {
		for _, locale := range localized.Keys() {
			if s, serr := localized.String(locale); serr == nil {
				info.LocalizedName[locale] = s
			}
		}
	}
	// Каноническое имя — английская локализация, если она есть.
	if english, ok := info.LocalizedName["english"]; ok {
		info.Name = english
	}

	// developers/publishers перечислены в associations нумерованными
	// ключами; порядок ключей узла повторяет порядок в файле.
	if assoc, aerr := app.KeyValues.Child("appinfo", "common", "associations"); aerr == nil {
		for _, k := range assoc.Keys() {
			entry, eerr := assoc.Child(k)
			if eerr != nil {
				continue
			}
			entryName, nerr := entry.String("name")
			entryType, terr := entry.String("type")
			if nerr != nil || terr != nil {
				continue
			}
			switch entryType {
			case "developer":
				info.Developers = append(info.Developers, entryName)
			case "publisher":
				info.Publishers = append(info.Publishers, entryName)
			}
		}
	}

	return info
}

// loadUsers читает config/loginusers.vdf. Любая проблема с файлом
// или отдельной записью не фатальна: битые записи пропускаются.
func (r *Resolver) loadUsers() map[uint64]*model.User {
	users := make(map[uint64]*model.User)

	data, err := os.ReadFile(r.paths.LoginUsersFile())
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("loginusers.vdf недоступен", slog.String("error", err.Error()))
		}
		return users
	}

	root, err := vdf.ParseText(string(data))
	if err != nil {
		r.logger.Error("Ошибка разбора loginusers.vdf", slog.String("error", err.Error()))
		return users
	}

	list, err := root.Child("users")
	if err != nil {
		r.logger.Warn("loginusers.vdf без секции users")
		return users
	}

	for _, key := range list.Keys() {
		id64, perr := strconv.ParseUint(key, 10, 64)
		if perr != nil {
			r.logger.Warn("Пропускаем запись с нечисловым SteamID64", slog.String("key", key))
			continue
		}
		entry, cerr := list.Child(key)
		if cerr != nil {
			r.logger.Warn("Пропускаем запись пользователя без тела", slog.String("key", key))
			continue
		}

		// Отсутствующие необязательные ключи — пустые значения.
		username, _ := entry.String("AccountName")
		displayName, _ := entry.String("PersonaName")
		timestamp, _ := entry.Uint64("Timestamp")

		id3 := ID64ToID3(id64)
		users[id3] = &model.User{
			ID:          ID64ToID(id64),
			ID3:         id3,
			ID64:        id64,
			Username:    username,
			DisplayName: displayName,
			Timestamp:   timestamp,
		}
	}

	return users
}

// loadShortcuts читает shortcut-приложения пользователя.
// Ошибка разбора изолируется: пользователь остаётся без shortcuts.
func (r *Resolver) loadShortcuts(id3 uint64) map[uint32]string {
	shortcuts := make(map[uint32]string)

	data, err := os.ReadFile(r.paths.ShortcutsFile(id3))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("shortcuts.vdf недоступен",
				slog.Uint64("id3", id3),
				slog.String("error", err.Error()),
			)
		}
		return shortcuts
	}

	root, _, err := vdf.ParseBinary(data, vdf.BinaryOptions{})
	if err != nil {
		r.logger.Error("Ошибка разбора shortcuts.vdf, пропускаем пользователя",
			slog.Uint64("id3", id3),
			slog.String("error", err.Error()),
		)
		return shortcuts
	}

	list, err := root.Child("shortcuts")
	if err != nil {
		return shortcuts
	}

	for _, key := range list.Keys() {
		entry, cerr := list.Child(key)
		if cerr != nil {
			continue
		}
		appID, aerr := entry.Uint32("appid")
		if aerr != nil {
			continue
		}
		// Регистр ключа имени менялся между версиями клиента.
		name, nerr := entry.String("AppName")
		if nerr != nil {
			name, nerr = entry.String("appname")
		}
		if nerr != nil {
			continue
		}
		shortcuts[appID] = name
	}

	r.logger.Info("Shortcuts загружены",
		slog.Uint64("id3", id3),
		slog.Int("count", len(shortcuts)),
	)
	return shortcuts
}
