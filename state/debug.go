package state

// debug switches, set from the command line
var (
	DBG_trace        = false
	DBG_debug        = false
	DBG_log_frames   = false
	DBG_log_commands = false
)
