package errors

import "google.golang.org/grpc/codes"

// Common errors shared by all services (service code 00).

// OK is the success errno. Code 0 is reserved and never registered.
var OK = New(0, 200, codes.OK, "OK", "成功")

var (
	// Request errors (category 01)
	ErrBadRequest       = Register(New(MakeCode(ServiceCommon, CategoryRequest, 0), 400, codes.InvalidArgument, "Bad request", "请求错误"))
	ErrInvalidParam     = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1), 400, codes.InvalidArgument, "Invalid parameter", "参数无效"))
	ErrMissingParam     = Register(New(MakeCode(ServiceCommon, CategoryRequest, 2), 400, codes.InvalidArgument, "Missing required parameter", "缺少必需参数"))
	ErrInvalidFormat    = Register(New(MakeCode(ServiceCommon, CategoryRequest, 3), 400, codes.InvalidArgument, "Invalid format", "格式无效"))
	ErrValidationFailed = Register(New(MakeCode(ServiceCommon, CategoryRequest, 4), 400, codes.InvalidArgument, "Validation failed", "校验失败"))

	// Authentication errors (category 02)
	ErrUnauthorized = Register(New(MakeCode(ServiceCommon, CategoryAuth, 0), 401, codes.Unauthenticated, "Unauthorized", "未认证"))

	// Authorization errors (category 03)
	ErrForbidden = Register(New(MakeCode(ServiceCommon, CategoryPermission, 0), 403, codes.PermissionDenied, "Forbidden", "禁止访问"))

	// Resource errors (category 04)
	ErrNotFound = Register(New(MakeCode(ServiceCommon, CategoryResource, 0), 404, codes.NotFound, "Resource not found", "资源不存在"))

	// Conflict errors (category 05)
	ErrConflict = Register(New(MakeCode(ServiceCommon, CategoryConflict, 0), 409, codes.AlreadyExists, "Resource conflict", "资源冲突"))

	// Rate limiting errors (category 06)
	ErrTooManyRequests = Register(New(MakeCode(ServiceCommon, CategoryRateLimit, 0), 429, codes.ResourceExhausted, "Too many requests", "请求过于频繁"))

	// Internal errors (category 07)
	ErrInternal = Register(New(MakeCode(ServiceCommon, CategoryInternal, 0), 500, codes.Internal, "Internal server error", "服务器内部错误"))
	ErrUnknown  = Register(New(MakeCode(ServiceCommon, CategoryInternal, 999), 500, codes.Unknown, "Unknown error", "未知错误"))

	// Database errors (category 08)
	ErrDatabase = Register(New(MakeCode(ServiceCommon, CategoryDatabase, 0), 500, codes.Internal, "Database error", "数据库错误"))

	// Cache errors (category 09)
	ErrCache = Register(New(MakeCode(ServiceCommon, CategoryCache, 0), 500, codes.Internal, "Cache error", "缓存错误"))

	// Network errors (category 10)
	ErrServiceUnavailable = Register(New(MakeCode(ServiceCommon, CategoryNetwork, 0), 503, codes.Unavailable, "Service unavailable", "服务不可用"))

	// Timeout errors (category 11)
	ErrTimeout = Register(New(MakeCode(ServiceCommon, CategoryTimeout, 0), 504, codes.DeadlineExceeded, "Request timeout", "请求超时"))

	// Configuration errors (category 12)
	ErrConfig = Register(New(MakeCode(ServiceCommon, CategoryConfig, 0), 500, codes.Internal, "Configuration error", "配置错误"))
)
