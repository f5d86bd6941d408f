package ddsapi

// Kind strings used by the data service to tag resources.
const (
	KindProject     = "dds-project"
	KindFolder      = "dds-folder"
	KindFile        = "dds-file"
	KindFileVersion = "dds-file-version"
	KindActivity    = "dds-activity"
)

// HashAlgorithmMD5 is the only hash algorithm the transfer protocol uses.
const HashAlgorithmMD5 = "md5"

// ResourceRef identifies a resource by kind and id, the shape the service
// expects for parent references.
type ResourceRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// HashPair is a named hash of some content.
type HashPair struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// Project is a top-level container of folders and files.
type Project struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsDeleted   bool   `json:"is_deleted"`
}

// Child is one entry in a project or folder listing. Kind distinguishes
// folders from files; CurrentVersion is only set for files.
type Child struct {
	ID             string       `json:"id"`
	Kind           string       `json:"kind"`
	Name           string       `json:"name"`
	CurrentVersion *FileVersion `json:"current_version,omitempty"`
}

// File is a remote file resource.
type File struct {
	ID             string       `json:"id"`
	Kind           string       `json:"kind"`
	Name           string       `json:"name"`
	CurrentVersion *FileVersion `json:"current_version,omitempty"`
}

// FileVersion is one immutable version of a file's content.
type FileVersion struct {
	ID     string `json:"id"`
	Upload Upload `json:"upload"`
}

// Upload is a chunked upload session, and doubles as the content record
// attached to a file version.
type Upload struct {
	ID     string     `json:"id"`
	Size   int64      `json:"size"`
	Hashes []HashPair `json:"hashes,omitempty"`
	Status struct {
		IsConsistent bool `json:"is_consistent"`
	} `json:"status"`
}

// Hash returns the upload's hash for the given algorithm, or "" when the
// service has not reported one.
func (u Upload) Hash(algorithm string) string {
	for _, h := range u.Hashes {
		if h.Algorithm == algorithm {
			return h.Value
		}
	}
	return ""
}

// ExternalDescriptor tells a client how to move one piece of content
// directly against the backing store: an HTTP verb, a host, a signed path,
// and headers to send. Descriptors expire, at which point the store answers
// 403 and a fresh descriptor must be requested.
type ExternalDescriptor struct {
	HTTPVerb    string            `json:"http_verb"`
	Host        string            `json:"host"`
	URL         string            `json:"url"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

// User is a registered account on the data service.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Activity is a provenance record tying file versions an operation read to
// the versions it produced.
type Activity struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartedOn   string `json:"started_on,omitempty"`
	EndedOn     string `json:"ended_on,omitempty"`
}

// AuthRole names a permission level a user can hold on a project, such as
// "project_admin" or "file_downloader".
type AuthRole struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Permission grants a user an auth role on a project.
type Permission struct {
	User     User     `json:"user"`
	AuthRole AuthRole `json:"auth_role"`
}
