package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition — запрошенный переход статуса запрещён
	// state machine (включая любой переход из терминального статуса).
	ErrInvalidTransition = errors.New("invalid status transition")
)
