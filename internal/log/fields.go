package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldExpenseID  = "expense_id"
	FieldBudgetID   = "budget_id"
	FieldCategory   = "category"
	FieldMonth      = "month"
	FieldBackend    = "backend"
	FieldKey        = "key"
)

// Components
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentAuth     = "auth"
	ComponentExpense  = "expense"
	ComponentBudget   = "budget"
	ComponentReport   = "report"
	ComponentStorage  = "storage"
	ComponentReceipts = "receipts"
)

// Operations
const (
	OpCreate   = "create"
	OpList     = "list"
	OpDelete   = "delete"
	OpLogin    = "login"
	OpRegister = "register"
	OpOAuth    = "oauth"
	OpExport   = "export"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
