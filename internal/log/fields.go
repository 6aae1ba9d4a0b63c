package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldRecordID    = "record_id"
	FieldRecordType  = "record_type"
	FieldRecordDate  = "record_date"
	FieldDescription = "description"
	FieldAmountCents = "amount_cents"
	FieldRecordCount = "record_count"
	FieldMonth       = "month"
	FieldView        = "view"
	FieldState       = "state"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentSession  = "session"
	ComponentIdentity = "identity"
	ComponentRecords  = "records"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
)

// Operations defines standard operation names
const (
	OpSignIn    = "sign_in"
	OpSignOut   = "sign_out"
	OpSubscribe = "subscribe"
	OpCreate    = "create"
	OpDelete    = "delete"
	OpList      = "list"
	OpMirror    = "mirror"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation   = "validation_error"
	ErrorTypeAuth         = "auth_error"
	ErrorTypeSubscription = "subscription_error"
	ErrorTypeWrite        = "write_error"
	ErrorTypeDatabase     = "database_error"
	ErrorTypeNetwork      = "network_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// With sets an arbitrary field.
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// WithError adds the error and its category; nil errors are skipped.
func (f LogFields) WithError(err error, errorType string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		if errorType != "" {
			f[FieldErrorType] = errorType
		}
	}
	return f
}

// WithRecord adds the loggable attributes of a record.
func (f LogFields) WithRecord(id, recordType, date string, amountCents int64) LogFields {
	if id != "" {
		f[FieldRecordID] = id
	}
	f[FieldRecordType] = recordType
	f[FieldRecordDate] = date
	f[FieldAmountCents] = amountCents
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
