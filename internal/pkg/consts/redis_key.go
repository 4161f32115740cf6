package consts

const (
	TokenRevokedKey = "token:revoked:"
)
