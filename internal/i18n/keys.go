// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthForbidden          = "auth.forbidden"

	// Users
	KeyUserNotFound = "user.not_found"
	KeyUserCreated  = "user.created"
	KeyUserDeleted  = "user.deleted"

	// OD requests
	KeyODRequestNotFound   = "od_request.not_found"
	KeyODRequestCreated    = "od_request.created"
	KeyODRequestApproved   = "od_request.approved"
	KeyODRequestRejected   = "od_request.rejected"
	KeyODRequestForwarded  = "od_request.forwarded"
	KeyODRequestConflict   = "od_request.conflict"
	KeyProofSubmitted      = "od_request.proof_submitted"
	KeyProofVerified       = "od_request.proof_verified"
	KeyProofRequired       = "od_request.proof_required"
	KeyEscalationCompleted = "od_request.escalation_completed"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// File Upload
	KeyFileTooLarge = "file.too_large"
)
