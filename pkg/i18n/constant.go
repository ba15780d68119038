package i18n

var ALLOW_LANG = map[string]bool{
	"en":    true,
	"zh-CN": true,
}

const DEFAULT_LANG = "en"

const (
	ERROR_INTERNAL          = "error.internal"
	ERROR_NOT_FOUND         = "error.notfound"
	ERROR_INVALIDARGUMENT   = "error.invalidargument"
	ERROR_UNAUTHORIZED      = "error.unauthorized"
	ERROR_TOO_MANY_REQUESTS = "error.tooManyRequests"

	ERROR_STORAGE               = "error.storage"
	ERROR_QUOTA_EXCEEDED        = "error.embedding.quota_exceeded"
	ERROR_EMBEDDING_UNAVAILABLE = "error.embedding.unavailable"
	ERROR_EMBEDDING_DIMENSIONS  = "error.embedding.dimensions"

	ERROR_CONTENT_EMPTY        = "error.content.empty"
	ERROR_CONTENT_TOO_LONG     = "error.content.too_long"
	ERROR_QUERY_EMPTY          = "error.query.empty"
	ERROR_MATERIAL_ID_REQUIRED = "error.material_id.required"
	ERROR_COURSE_ID_REQUIRED   = "error.course_id.required"
	ERROR_CHUNK_INDEX_INVALID  = "error.chunk_index.invalid"
	ERROR_CHUNK_DUPLICATED     = "error.chunk_index.duplicated"

	ERROR_RELATIONSHIP_INVALID      = "error.relationship.invalid"
	ERROR_RELATIONSHIP_TYPE         = "error.relationship.type"
	ERROR_RELATIONSHIP_WEIGHT       = "error.relationship.weight"
	ERROR_RELATIONSHIP_SELF         = "error.relationship.self"
	ERROR_RELATIONSHIP_NODE_MISSING = "error.relationship.node_missing"
	ERROR_RELATIONSHIP_CROSS_COURSE = "error.relationship.cross_course"
)
