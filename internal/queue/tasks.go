package queue

const (
	TypeVectorPurge     = "vectors:purge"
	TypeDocumentReindex = "document:reindex"
)

type VectorPurgePayload struct {
	DocumentID string `json:"document_id"`
}

type DocumentReindexPayload struct {
	DocumentID string `json:"document_id"`
}
