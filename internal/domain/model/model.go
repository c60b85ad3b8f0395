// Пакет model — доменные модели сервера скриншотов.
package model

// User — аккаунт Steam, обнаруженный на машине.
// Все три идентификатора выводятся из одной учётной записи:
// ID3 = ID64 − 76561197960265728, ID = ID3 / 2.
type User struct {
	// ID — короткая форма идентификатора (account id / 2 в терминах Valve)
	ID uint64 `json:"id"`
	// ID3 — идентификатор аккаунта, имя каталога в userdata/
	ID3 uint64 `json:"id3"`
	// ID64 — 64-битная форма (SteamID64)
	ID64 uint64 `json:"id64"`
	// Username — логин аккаунта (AccountName)
	Username string `json:"username"`
	// DisplayName — отображаемое имя (PersonaName)
	DisplayName string `json:"displayName"`
	// Timestamp — время последней активности аккаунта (unix)
	Timestamp uint64 `json:"timestamp"`
}

// AppInfo — игра или стороннее приложение из библиотеки пользователя.
type AppInfo struct {
	// ID — числовой идентификатор приложения
	ID uint32 `json:"id"`
	// Name — каноническое имя (английская локализация либо common.name)
	Name string `json:"name"`
	// LocalizedName — локаль → локализованное имя
	LocalizedName map[string]string `json:"localized_name"`
	// Developers — разработчики в порядке перечисления в каталоге
	Developers []string `json:"developers"`
	// Publishers — издатели в порядке перечисления в каталоге
	Publishers []string `json:"publishers"`
	// NonSteam — true для shortcut-приложений без записи в каталоге
	NonSteam bool `json:"non_steam"`
}

// NewAppInfo создаёт AppInfo с инициализированными коллекциями,
// чтобы в JSON уходили [] и {}, а не null.
func NewAppInfo(id uint32, name string) *AppInfo {
	return &AppInfo{
		ID:            id,
		Name:          name,
		LocalizedName: map[string]string{},
		Developers:    []string{},
		Publishers:    []string{},
	}
}

// Pagination — параметры и итог постраничного среза.
type Pagination struct {
	// Total — общее количество элементов
	Total int `json:"total"`
	// Page — номер страницы, начиная с 0
	Page int `json:"page"`
	// PerPage — размер страницы (10, 20, 50 или 100)
	PerPage int `json:"per_page"`
}

// ServerState — состояние дочернего HTTP-сервера, отдаваемое
// супервизором опрашивающему клиенту.
type ServerState struct {
	// Running — true только после успешного health check
	Running bool `json:"server_running"`
	// IPAddress — адрес машины в локальной сети
	IPAddress string `json:"ip_address"`
	// Port — настроенный порт дочернего сервера
	Port int `json:"port"`
	// AcceptedWarning — принято ли одноразовое предупреждение
	AcceptedWarning bool `json:"accepted_warning"`
	// Error — последняя ошибка процесса (null, если её нет)
	Error *string `json:"error"`
}
