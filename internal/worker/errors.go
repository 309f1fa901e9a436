package worker

import "errors"

// Ошибки worker.
var (
	// ErrFlowNotFound — flow не найден в БД.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowAlreadyActive — flow уже выполняется этим worker'ом.
	ErrFlowAlreadyActive = errors.New("flow already active")
)
