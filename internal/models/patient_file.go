package models

// PatientFile holds the bytes of an uploaded gallery image. The patient
// document keeps a FileRef pointing at it.
type PatientFile struct {
	BaseModel
	PatientID  string `gorm:"size:24;index;not null" json:"patientId"`
	UploadedBy string `gorm:"size:36" json:"uploadedBy"`
	FileName   string `gorm:"not null" json:"fileName"`
	FileType   string `gorm:"not null" json:"fileType"` // sniffed MIME type
	Size       int64  `json:"size"`
	FileData   []byte `gorm:"type:longblob;not null" json:"-"`
}
