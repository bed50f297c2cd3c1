package config

const (
	defaultAPIBind = "127.0.0.1:7200"

	defaultEngineBinary       = "/usr/local/bin/AssetRipper.GUI.Free"
	defaultEnginePort         = 8765
	defaultStartupTimeout     = 30
	defaultProbeInterval      = 30
	defaultProbeTimeout       = 5
	defaultLoadTimeout        = 300
	defaultExportTimeout      = 3600
	defaultMaxRestartAttempts = 5
	defaultBackoffBase        = 1
	defaultBackoffCap         = 60
	defaultStopGracePeriod    = 10

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 5
	defaultReadyWaitTimeout   = 30

	defaultRetentionDays      = 30
	defaultSweepIntervalHours = 24

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "~/.local/share/assetrip",
			APIBind: defaultAPIBind,
		},
		Engine: Engine{
			BinaryPath:         defaultEngineBinary,
			Port:               defaultEnginePort,
			StartupTimeout:     defaultStartupTimeout,
			ProbeInterval:      defaultProbeInterval,
			ProbeTimeout:       defaultProbeTimeout,
			LoadTimeout:        defaultLoadTimeout,
			ExportTimeout:      defaultExportTimeout,
			MaxRestartAttempts: defaultMaxRestartAttempts,
			RestartBackoffBase: defaultBackoffBase,
			RestartBackoffCap:  defaultBackoffCap,
			StopGracePeriod:    defaultStopGracePeriod,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			ReadyWaitTimeout:   defaultReadyWaitTimeout,
		},
		Cleanup: Cleanup{
			Enabled:            true,
			RetentionDays:      defaultRetentionDays,
			SweepIntervalHours: defaultSweepIntervalHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
