// appinfo.go — чтение каталога приложений Steam (appcache/appinfo.vdf).
//
// Файл состоит из заголовка (магическое число + universe), в версии 29
// дополнительно смещения таблицы строк, и последовательности записей
// приложений, завершающейся идентификатором 0.
package vdf

import (
	"fmt"
)

// Известные версии appinfo.vdf.
const (
	// MagicV27 — до декабря 2022
	MagicV27 uint32 = 0x07_56_44_27
	// MagicV28 — добавлен checksum_bin
	MagicV28 uint32 = 0x07_56_44_28
	// MagicV29 — ключи через string pool
	MagicV29 uint32 = 0x07_56_44_29
)

// App — запись приложения в каталоге.
type App struct {
	// ID — идентификатор приложения
	ID uint32
	// Size, State, LastUpdate — служебные поля записи
	Size       uint32
	State      uint32
	LastUpdate uint32
	// AccessToken — токен доступа записи
	AccessToken uint64
	// ChangeNumber — номер ревизии
	ChangeNumber uint32
	// KeyValues — дерево метаданных приложения (appinfo/common/...)
	KeyValues *Node
}

// AppInfoFile — разобранный каталог приложений.
type AppInfoFile struct {
	// Version — магическое число версии формата
	Version uint32
	// Universe — вселенная Steam
	Universe uint32
	// Apps — записи по идентификатору приложения
	Apps map[uint32]*App
}

// ParseAppInfo разбирает содержимое appinfo.vdf.
// Неизвестное магическое число и любое повреждение данных
// возвращают ParseError.
func ParseAppInfo(data []byte) (*AppInfoFile, error) {
	r := &binReader{data: data}

	version, err := r.uint32()
	if err != nil {
		return nil, err
	}
	universe, err := r.uint32()
	if err != nil {
		return nil, err
	}

	opts := BinaryOptions{}
	switch version {
	case MagicV27, MagicV28:
		// Ключи инлайн, пула строк нет.
	case MagicV29:
		pool, perr := readStringPool(r)
		if perr != nil {
			return nil, perr
		}
		opts.StringPool = pool
	default:
		return nil, &ParseError{Offset: 0, Msg: fmt.Sprintf("неизвестное магическое число %#x", version)}
	}

	apps := make(map[uint32]*App)
	for {
		app, done, aerr := parseApp(r, &opts, version)
		if aerr != nil {
			return nil, aerr
		}
		if done {
			break
		}
		apps[app.ID] = app
	}

	return &AppInfoFile{Version: version, Universe: universe, Apps: apps}, nil
}

// readStringPool читает таблицу строк версии 29. Смещение таблицы
// лежит сразу после заголовка и отсчитывается от начала файла;
// записи приложений идут между смещением и таблицей.
func readStringPool(r *binReader) ([]string, error) {
	rawOffset, err := r.uint64()
	if err != nil {
		return nil, err
	}
	offset := int(rawOffset)
	if offset < r.pos || offset > len(r.data) {
		return nil, &ParseError{Offset: r.pos, Msg: fmt.Sprintf("смещение таблицы строк %d вне файла", offset)}
	}

	table := &binReader{data: r.data[offset:]}
	count, err := table.uint32()
	if err != nil {
		return nil, err
	}

	pool := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		s, serr := table.utf8()
		if serr != nil {
			return nil, serr
		}
		pool = append(pool, s)
	}

	// Записи приложений заканчиваются на границе таблицы строк.
	r.data = r.data[:offset]
	return pool, nil
}

// parseApp читает одну запись приложения. done=true означает
// терминальную запись (id 0) либо конец данных.
func parseApp(r *binReader, opts *BinaryOptions, version uint32) (*App, bool, error) {
	if r.pos >= len(r.data) {
		return nil, true, nil
	}

	id, err := r.uint32()
	if err != nil {
		return nil, false, err
	}
	if id == 0 {
		return nil, true, nil
	}

	app := &App{ID: id}
	if app.Size, err = r.uint32(); err != nil {
		return nil, false, err
	}
	if app.State, err = r.uint32(); err != nil {
		return nil, false, err
	}
	if app.LastUpdate, err = r.uint32(); err != nil {
		return nil, false, err
	}
	if app.AccessToken, err = r.uint64(); err != nil {
		return nil, false, err
	}

	// SHA-1 текстового представления — не используется.
	if _, err = r.take(20); err != nil {
		return nil, false, err
	}
	if app.ChangeNumber, err = r.uint32(); err != nil {
		return nil, false, err
	}
	// SHA-1 бинарного представления появился в версии 28.
	if version != MagicV27 {
		if _, err = r.take(20); err != nil {
			return nil, false, err
		}
	}

	kv, err := parseBinaryNode(r, opts)
	if err != nil {
		return nil, false, err
	}
	app.KeyValues = kv

	return app, false, nil
}
