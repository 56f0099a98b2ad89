package audit

import (
	"errors"

	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

func isConnectError(err error) bool {
	var ce *sftpmanager.ConnectError
	return errors.As(err, &ce)
}

// FileOp builds an entry for a file operation outcome.
func FileOp(op, path, target string, err error) Entry {
	e := Entry{
		EventType: EventFileOperation,
		Operation: op,
		Path:      path,
		Target:    target,
		Success:   err == nil,
	}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}
