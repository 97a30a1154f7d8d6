package database

import "time"

// FilePathRecord is the durable identity of one normalized path.
type FilePathRecord struct {
	PathID       int64     `json:"pathId"`
	Path         string    `json:"path"`
	Filename     string    `json:"filename"`
	FileSize     *int64    `json:"fileSize,omitempty"`
	ModifiedTime *int64    `json:"modifiedTime,omitempty"` // unix nanoseconds
	ColorTag     string    `json:"colorTag"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Hash algorithms understood by the hash producer.
const (
	AlgorithmCRC32  = "CRC32"
	AlgorithmXXH64  = "XXH64"
	AlgorithmSHA256 = "SHA256"
)

// HashRecord is the current hash of a file for one algorithm.
type HashRecord struct {
	Algorithm      string `json:"algorithm"`
	Value          string `json:"value"`
	FileSizeAtHash int64  `json:"fileSizeAtHash"`
	// FileMtimeAtHash is the file's modification time in unix nanoseconds
	// when it was hashed; 0 when unknown.
	FileMtimeAtHash int64     `json:"fileMtimeAtHash"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HashEntry is one item of a batch hash write.
type HashEntry struct {
	PathID          int64
	Algorithm       string
	Value           string
	FileSizeAtHash  int64
	FileMtimeAtHash int64
}

// MetadataKind distinguishes a quick extraction from a full one.
type MetadataKind string

const (
	MetadataFast     MetadataKind = "fast"
	MetadataExtended MetadataKind = "extended"
)

// Satisfies reports whether a record of kind k answers a query for want.
// An extended record is a superset of a fast one.
func (k MetadataKind) Satisfies(want MetadataKind) bool {
	return k == want || k == MetadataExtended
}

// MetadataRecord is the authoritative metadata blob of a file.
type MetadataRecord struct {
	PathID    int64          `json:"pathId"`
	Kind      MetadataKind   `json:"kind"`
	Data      map[string]any `json:"data"`
	Modified  bool           `json:"modified"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// MetadataEntry is one item of a batch metadata write.
type MetadataEntry struct {
	PathID   int64
	Kind     MetadataKind
	Data     map[string]any
	Modified bool
}

// MetadataCategory groups taxonomy fields.
type MetadataCategory struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	SortOrder   int    `json:"sortOrder"`
}

// MetadataField is one registered structured metadata key.
type MetadataField struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	CategoryKey string `json:"category"`
	DataType    string `json:"dataType"`
	SortOrder   int    `json:"sortOrder"`
}

// ThumbnailEntry maps a file version to its cached artifact.
type ThumbnailEntry struct {
	FolderPath     string   `json:"folderPath"`
	FilePath       string   `json:"filePath"`
	FileMtime      int64    `json:"fileMtime"` // unix nanoseconds
	FileSize       int64    `json:"fileSize"`
	CacheFilename  string   `json:"cacheFilename"`
	VideoFrameTime *float64 `json:"videoFrameTime,omitempty"`
}

// StateType is the stored type of a session value.
type StateType string

const (
	StateTypeString StateType = "string"
	StateTypeInt    StateType = "int"
	StateTypeFloat  StateType = "float"
	StateTypeBool   StateType = "bool"
	StateTypeJSON   StateType = "json"
)

// StateValue is a raw session entry.
type StateValue struct {
	Value     string    `json:"value"`
	Type      StateType `json:"type"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is a snapshot of the store for the stats endpoint and CLI.
type Summary struct {
	Path          string           `json:"path"`
	SchemaVersion int              `json:"schemaVersion"`
	Records       map[string]int64 `json:"records"`
	FileSizes     map[string]int64 `json:"fileSizes"`
}
