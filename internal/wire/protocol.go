// Package wire defines the JSON frame shapes exchanged with the control
// server (spec §6.1). Frames are plain structs with json tags rather than
// a tagged envelope type, mirroring the teacher's internal/ws/protocol.go:
// each frame is marshaled and sent standalone. Inbound frames have one
// shape, CommandFrame, and DecodeCommand unmarshals them into it directly.
package wire

// Capabilities the agent advertises in the auth frame. CapPayloadCompression
// is a supplemented capability (SPEC_FULL.md §3); the rest are named in
// spec.md §6.1's auth frame example verbatim.
const (
	CapCommandAck         = "command_ack"
	CapFileChunked        = "file_chunked"
	CapScreenshots        = "screenshots"
	CapPayloadCompression = "payload_compression"
)

// ClientInfo is the nested auth-frame block describing the host and its
// current (client-id-stripped) settings.
type ClientInfo struct {
	Hostname     string         `json:"hostname"`
	OSType       string         `json:"os_type"`
	PlatformFull string         `json:"platform_full"`
	Settings     map[string]any `json:"settings"`
}

// AuthFrame is the first frame the agent sends after a successful dial
// (spec §4.2 Authenticating, §6.1).
type AuthFrame struct {
	AuthToken       string     `json:"auth_token"`
	ClientID        string     `json:"client_id"`
	ProtocolVersion int        `json:"protocol_version"`
	Capabilities    []string   `json:"capabilities"`
	ClientInfo      ClientInfo `json:"client_info"`
}

// CommandFrame is a server-to-agent instruction (spec §4.3, §6.1).
type CommandFrame struct {
	Command   string `json:"command"`
	CommandID string `json:"command_id,omitempty"`
}

// AckFrame acknowledges receipt of a command_id-bearing command, sent
// before the handler runs, only when CapCommandAck was advertised (spec
// §4.3, §6.1).
type AckFrame struct {
	CommandAck string `json:"command_ack"`
	Timestamp  string `json:"timestamp"`
}

// ErrorFrame is the generic handler/dispatcher error envelope (spec §4.3,
// §7).
type ErrorFrame struct {
	Error     string `json:"error"`
	CommandID string `json:"command_id,omitempty"`
}

// DownloadStart, DownloadChunk and DownloadEnd are the three frames a
// DownloadJob emits in order (spec §4.5, §6.1's "File transfer frames").
type DownloadStart struct {
	DownloadFileStart DownloadStartBody `json:"download_file_start"`
}

type DownloadStartBody struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Path     string `json:"path"`
}

type DownloadChunk struct {
	DownloadFileChunk DownloadChunkBody `json:"download_file_chunk"`
}

type DownloadChunkBody struct {
	Data string `json:"data"`
	Path string `json:"path"`
}

type DownloadEnd struct {
	DownloadFileEnd DownloadEndBody `json:"download_file_end"`
}

type DownloadEndBody struct {
	Path string `json:"path"`
}

// FileUploadResult is the terminal response to upload_file_end (spec
// §4.5).
type FileUploadResult struct {
	FileUploadResult string `json:"file_upload_result"`
	Error            string `json:"error,omitempty"`
	CommandID        string `json:"command_id,omitempty"`
}

// FileListEntry is one entry of the list_files response (spec §4.3.1).
type FileListEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "file" or "directory"
	Size int64  `json:"size"`
}

type FilesListResult struct {
	FilesList []FileListEntry `json:"files_list"`
	CommandID string          `json:"command_id,omitempty"`
}

type FileDeleteResult struct {
	FileDeleteResult string `json:"file_delete_result"`
	Error            string `json:"error,omitempty"`
	CommandID        string `json:"command_id,omitempty"`
}

type FolderCreatedResult struct {
	FolderCreated string `json:"folder_created"`
	Error         string `json:"error,omitempty"`
	CommandID     string `json:"command_id,omitempty"`
}

type RenameResult struct {
	RenameResult string `json:"rename_result"`
	Error        string `json:"error,omitempty"`
	CommandID    string `json:"command_id,omitempty"`
}

// SettingsAppliedResult is the apply_settings response (spec §4.3.1).
type SettingsAppliedResult struct {
	SettingsApplied map[string]any `json:"settings_applied"`
	CommandID       string         `json:"command_id,omitempty"`
}

type ScreenshotSettingsUpdatedResult struct {
	ScreenshotSettingsUpdated map[string]any `json:"screenshot_settings_updated"`
	CommandID                 string         `json:"command_id,omitempty"`
}

type ScreenshotSettingsResult struct {
	ScreenshotSettings map[string]any `json:"screenshot_settings"`
	CommandID          string         `json:"command_id,omitempty"`
}

type ClientSettingsResult struct {
	ClientSettings map[string]any `json:"client_settings"`
	CommandID      string         `json:"command_id,omitempty"`
}

// ScreenshotResult is the response for both screenshot and
// screenshot_quality (spec §4.7).
type ScreenshotResult struct {
	Screenshot string `json:"screenshot"`
	Quality    int    `json:"quality"`
	Timestamp  string `json:"timestamp"`
	Error      string `json:"error,omitempty"`
	CommandID  string `json:"command_id,omitempty"`
}

// MetricFrame is the periodic telemetry snapshot (spec §4.4, §6.1).
type MetricFrame struct {
	Version         string  `json:"version"`
	Hostname        string  `json:"hostname"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	DiskPercent     float64 `json:"disk_percent"`
	DiskTotal       uint64  `json:"disk_total"`
	DiskUsed        uint64  `json:"disk_used"`
	Uptime          uint64  `json:"uptime"`
	BytesSent       uint64  `json:"bytes_sent"`
	BytesRecv       uint64  `json:"bytes_recv"`
	BytesSentSpeed  float64 `json:"bytes_sent_speed"`
	BytesRecvSpeed  float64 `json:"bytes_recv_speed"`
	Platform        string  `json:"platform"`
	LocalIP         string  `json:"local_ip"`
}

// FullSystemInfoResult wraps the full hardware inventory (spec §4.8's
// "full inventory"; fields supplemented from original_source's
// get_linux_full_system_info, SPEC_FULL.md §3).
type FullSystemInfoResult struct {
	FullSystemInfo any    `json:"full_system_info"`
	Compressed     bool   `json:"compressed,omitempty"`
	CommandID      string `json:"command_id,omitempty"`
}

// CompressedPayload pairs compressed data with its flag (SPEC_FULL.md §3
// supplemented capability). The FullSystemInfo/AptRepoData results do not
// use it: when compressed, they carry the base64 gzip string directly
// under their own key and set their own Compressed field.
type CompressedPayload struct {
	Data       string `json:"data"`
	Compressed bool   `json:"compressed"`
}

// AptRepoDataResult is the apt:get_repos response: path -> file content
// (spec §4.8).
type AptRepoDataResult struct {
	AptRepoData any    `json:"apt_repo_data"`
	Compressed  bool   `json:"compressed,omitempty"`
	CommandID   string `json:"command_id,omitempty"`
}

type AptCommandResult struct {
	AptCommandResult string `json:"apt_command_result"`
	ExitCode         int    `json:"exit_code,omitempty"`
	CommandID        string `json:"command_id,omitempty"`
}

type AptCommandOutput struct {
	AptCommandOutput string `json:"apt_command_output"`
}

// UpgradablePackage is one parsed line of `apt list --upgradable`.
type UpgradablePackage struct {
	Name           string `json:"name"`
	NewVersion     string `json:"new_version"`
	CurrentVersion string `json:"current_version"`
}

type AptUpgradableListResult struct {
	AptUpgradableList []UpgradablePackage `json:"apt_upgradable_list"`
	Scheduled         bool                `json:"scheduled,omitempty"`
	CommandID         string              `json:"command_id,omitempty"`
}

// Interactive frames (spec §4.6, §6.1).
type InteractiveStartedResult struct {
	InteractiveStarted bool   `json:"interactive_started"`
	CommandID          string `json:"command_id,omitempty"`
}

type InteractiveStoppedResult struct {
	InteractiveStopped bool `json:"interactive_stopped"`
}

type InteractiveOutput struct {
	InteractiveOutput InteractiveOutputBody `json:"interactive_output"`
}

type InteractiveOutputBody struct {
	Data string `json:"data"`
}

// InstallResult acknowledges install_package just before process exit
// (spec §4.3.1, §4.8).
type InstallResult struct {
	InstallResult string `json:"install_result"`
	Error         string `json:"error,omitempty"`
	CommandID     string `json:"command_id,omitempty"`
}

type StatusResult struct {
	Status    string `json:"status"`
	CommandID string `json:"command_id,omitempty"`
}

type CommandResult struct {
	CommandResult string `json:"command_result"`
	CommandID     string `json:"command_id,omitempty"`
}

type CommandErrorResult struct {
	CommandError string `json:"command_error"`
	CommandID    string `json:"command_id,omitempty"`
}

type PromptUpdateResult struct {
	PromptUpdate string `json:"prompt_update"`
	CommandID    string `json:"command_id,omitempty"`
}

type MessageResult struct {
	MessageResult string `json:"message_result"`
	CommandID     string `json:"command_id,omitempty"`
}
