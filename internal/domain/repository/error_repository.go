package repository

// Errores comunes de los repositorios

var (
	ErrNotificationNotFound = NewError("notification not found")
	ErrRequestNotFound      = NewError("notification request not found")
)

// NewError crea una nueva instancia de Error
func NewError(message string) error {
	return &Error{
		message: message,
	}
}

type Error struct {
	message string
}

func (e *Error) Error() string {
	return e.message
}
