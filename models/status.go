package models

// UploadStatus tracks whether a measurement has been acknowledged by the ERP.
// The only transition is NotUploaded -> Uploaded.
type UploadStatus string

const (
	NotUploaded UploadStatus = "NotUploaded"
	Uploaded    UploadStatus = "Uploaded"
)

func (s UploadStatus) Valid() bool {
	return s == NotUploaded || s == Uploaded
}
