package errors

import "google.golang.org/grpc/codes"

// DocQA 服务代码: 20 (业务服务范围 20-79)
// 错误码格式: AABBCCC
// - AA: 20 (DocQA 服务)
// - BB: 类别代码
// - CCC: 序号

const (
	// ServiceDocQA is for the document QA service.
	ServiceDocQA = 20
)

var (
	// 请求参数错误 (类别 01)
	ErrDocQAInvalidRequest   = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 1), 400, codes.InvalidArgument, "Invalid request parameters", "请求参数无效"))
	ErrDocQAInvalidDirectory = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 2), 400, codes.InvalidArgument, "Invalid directory path", "目录路径无效"))
	ErrDocQAEmptyQuestion    = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 3), 400, codes.InvalidArgument, "Question must not be empty", "问题不能为空"))

	// 会话错误 (类别 04/05)
	ErrDocQASessionNotFound = Register(New(MakeCode(ServiceDocQA, CategoryResource, 1), 404, codes.NotFound, "Session not found", "会话不存在"))
	ErrDocQASessionBusy     = Register(New(MakeCode(ServiceDocQA, CategoryConflict, 1), 409, codes.Aborted, "Session is already generating an answer", "会话正在生成答案"))

	// 处理错误 (类别 07)
	ErrDocQAIngestFailed   = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 1), 500, codes.Internal, "Document ingestion failed", "文档摄取失败"))
	ErrDocQAQueryFailed    = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 2), 500, codes.Internal, "Query failed", "查询失败"))
	ErrDocQAGenerateFailed = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 3), 500, codes.Internal, "Answer generation failed", "答案生成失败"))

	// 依赖服务错误 (类别 10)
	ErrDocQAStoreUnavailable = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 1), 503, codes.Unavailable, "Vector store unavailable", "向量存储不可用"))
	ErrDocQAModelUnavailable = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 2), 503, codes.Unavailable, "Model service unavailable", "模型服务不可用"))
)
