package apperr

var (
	ErrAccessDenied     = Forbidden("Access denied")
	ErrNotConnected     = Forbidden("You can only message your connections")
	ErrEmptyMessage     = InvalidArgument("Message content is empty")
	ErrSelfConversation = InvalidArgument("cannot start a conversation with yourself")
	ErrUserNotFound     = NotFound("user not found")
	ErrInvalidCreds     = Unauthenticated("Invalid Credentials.")
	ErrEmailTaken       = Conflict("email is already registered")
	ErrRequestExists    = Conflict("Connection Request already exists!")
)

var (
	ErrTokenMissing = Unauthenticated("No token provided")
	ErrTokenExpired = Unauthenticated("Token expired")
	ErrTokenInvalid = Unauthenticated("Invalid token")
)
