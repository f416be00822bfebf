package domain

type CtxKey string

const (
	KeySessionID CtxKey = "SessionID"
	KeyUserID    CtxKey = "UserID"
	KeyUserEmail CtxKey = "Email"
	KeyUserRole  CtxKey = "Role"
)
