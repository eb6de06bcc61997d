package bot

// Command constants for Telegram bot commands.
const (
	CommandStart    = "/start"
	CommandSettings = "/settings"
	CommandStatus   = "/status"
	CommandReset    = "/reset"
)

// Prefix under which both gender buttons are routed.
const callbackGenderPrefix = "gender_"
