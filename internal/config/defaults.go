package config

import "path/filepath"

// DefaultTimestampFormat is the strftime pattern used for the {timestamp}
// placeholder when the config does not override it.
const DefaultTimestampFormat = "%Y-%m-%d %H:%M:%S %Z"

// DefaultSMTPPort is the mail submission port.
const DefaultSMTPPort = 587

// DefaultMaxAttachmentMB is the inclusive attachment size limit.
const DefaultMaxAttachmentMB = 5

func Defaults() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		General: GeneralConfig{
			DataDir:           dataDir,
			Debug:             false,
			SendMail:          true,
			DeleteAttachments: true,
		},
		Signal: SignalConfig{
			AttachmentDir: filepath.Join("~", ".local", "share", "signal-cli", "attachments"),
			UseSessionBus: true,
		},
		Mail: MailConfig{
			Heading:         "New Signal message from {senderName} ({senderId}), sent {timestamp}",
			Signature:       "delivered by signalmail",
			MaxAttachmentMB: DefaultMaxAttachmentMB,
			TimestampFormat: DefaultTimestampFormat,
		},
		SMTP: SMTPConfig{
			Port: DefaultSMTPPort,
		},
	}
}
