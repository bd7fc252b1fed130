package consts

import (
	"os"
	"time"
)

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// ProgramName is passed as $0 to custom diff commands.
	ProgramName = "postgit"

	// DefaultDiffTool is the external diff tool invoked when no custom command is configured.
	DefaultDiffTool = "migra"

	// DefaultDiffToolUnsafeFlag lets the diff tool emit statements that may lose data.
	DefaultDiffToolUnsafeFlag = "--unsafe"

	// DefaultMaintenanceDatabase is the administrative database used for CREATE/DROP DATABASE.
	DefaultMaintenanceDatabase = "postgres"

	// DefaultDiffSourceDatabase is the comparison database holding the "from" schema.
	DefaultDiffSourceDatabase = "postgit_diff_source"

	// DefaultDiffTargetDatabase is the comparison database holding the "to" schema.
	DefaultDiffTargetDatabase = "postgit_diff_target"

	// DefaultHost is used when neither the config nor PGHOST provide one.
	DefaultHost = "localhost"

	// DefaultPort is used when neither the config nor PGPORT provide one.
	DefaultPort = uint16(5432)

	// DefaultUser is used when neither the config nor PGUSER provide one.
	DefaultUser = "postgres"

	// DefaultPostgresImage is the image used for throwaway comparison servers.
	DefaultPostgresImage = "postgres:16-alpine"

	// DefaultDebounce is the quiescence window used by the watch loop.
	DefaultDebounce = time.Second

	// SQLExtension identifies schema files.
	SQLExtension = ".sql"
)

// ConfigFiles are the file names searched (in order) when no config path is given.
var ConfigFiles = []string{"postgit.yaml", "postgit.yml", "postgit.toml"}
