package domain

import "errors"

// Таксономия ошибок хранилища. Репозитории переводят коды драйвера в эти
// значения; вызывающие сопоставляют через errors.Is и никогда не видят
// типов драйвера.
var (
	// ErrUniquenessConflict — сработало ограничение уникальности. Сигнал
	// перечитать состояние, а не фатальная ошибка.
	ErrUniquenessConflict = errors.New("uniqueness conflict")
	// ErrNotFound — целевая запись не существует.
	ErrNotFound = errors.New("not found")
	// ErrIllegalState — доменный триггер отклонил запись (например, вставку
	// изображения в неоткрытую сессию).
	ErrIllegalState = errors.New("illegal state")
	// ErrIllegalTransition — триггер переходов отклонил обновление сессии.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrTransient — обрыв соединения или таймаут; диспетчеры повторяют на
	// следующем тике.
	ErrTransient = errors.New("transient store error")
	// ErrInternal — нарушение инварианта (RETURNING не вернул строку и т.п.).
	ErrInternal = errors.New("internal error")
)
