package models

// InstallType selects the installer used to put a tool or build onto a
// system under test.
type InstallType string

const (
	// InstallTypeNone means the artifact needs no installation step and
	// contributes nothing to a test case's execution queue.
	InstallTypeNone  InstallType = "no_install"
	InstallTypeBasic InstallType = "basic_install"
	InstallTypeMSI   InstallType = "msi_install"
)

// SourceType selects the sourcer used to stage a tool onto the bespoke
// server before a run.
type SourceType string

const (
	// SourceTypeNone means the artifact is already present in the local
	// tools root.
	SourceTypeNone  SourceType = "no_source"
	SourceTypeLocal SourceType = "local"
	SourceTypeHTTP  SourceType = "http"
)

// Tool describes an installable artifact: either a supporting tool or the
// build under test. Builds reuse the same descriptor with Build set.
type Tool struct {
	Name           string
	OSType         OSType
	OSArch         string
	Version        string
	SourceType     SourceType
	SourceCopyOnce bool
	InstallType    InstallType
	// SourceProperties carries sourcer-specific settings, e.g. "url" for
	// http sources or "source_path" for local ones.
	SourceProperties map[string]string
	// InstallProperties carries installer-specific settings, e.g.
	// "source_path"/"target_path" for basic installs or "source_file" plus
	// arbitrary MSI public properties for msi installs.
	InstallProperties map[string]string
	// Build marks the artifact as a build under test rather than a tool.
	Build bool
}
