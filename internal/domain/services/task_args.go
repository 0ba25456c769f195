package services

import "github.com/google/uuid"

// Task names as they appear on the queue.
const (
	TaskLocateFields       = "locate_fields"
	TaskStampPDF           = "stamp_pdf"
	TaskRenderPages        = "render_pages"
	TaskSendEmail          = "send_email"
	TaskWebhooksFileUsage  = "invoke_webhooks_fileusage"
	TaskWebhooksFieldUsage = "invoke_webhooks_fieldusage"
	TaskDeleteBlobs        = "delete_blobs"
)

type DocumentTaskArgs struct {
	DocID uuid.UUID `json:"doc_id"`
}

type SendEmailArgs struct {
	DocID uuid.UUID `json:"doc_id"`
	Email *string   `json:"email,omitempty"`
}

type UsageTaskArgs struct {
	UsageID uint `json:"usage_id"`
}

type DeleteBlobsArgs struct {
	Names []string `json:"names"`
}
