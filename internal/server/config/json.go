package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/passlink/passlink/internal/flagx"
	"github.com/passlink/passlink/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON
// configuration files. Interval fields use timex.Duration, which accepts
// both "15m"-style strings and integer nanoseconds. After unmarshalling,
// non-zero values are copied onto the runtime Config.
type JsonConfig struct {
	EndpointAddr string `json:"endpoint_addr"`
	DatabaseDSN  string `json:"database_dsn"`
	SecretKey    string `json:"secret_key"`
	DevMode      *bool  `json:"dev_mode"`

	SiteName    string `json:"site_name"`
	MailFrom    string `json:"mail_from"`
	LinkBaseURL string `json:"link_base_url"`

	TokenTTL        timex.Duration `json:"token_ttl"`
	SessionSlide    timex.Duration `json:"session_slide"`
	SessionAbsolute timex.Duration `json:"session_absolute"`

	RateLimitWindow  timex.Duration `json:"rate_limit_window"`
	EmailSoftLimit   int64          `json:"email_soft_limit"`
	EmailHardLimit   int64          `json:"email_hard_limit"`
	IPSoftLimit      int64          `json:"ip_soft_limit"`
	IPHardLimit      int64          `json:"ip_hard_limit"`
	EmailIPSoftLimit int64          `json:"email_ip_soft_limit"`
	EmailIPHardLimit int64          `json:"email_ip_hard_limit"`

	LockoutFailureThreshold int64          `json:"lockout_failure_threshold"`
	LockoutCooldown         timex.Duration `json:"lockout_cooldown"`
	LockoutExponential      *bool          `json:"lockout_exponential"`
	LockoutMaxCooldown      timex.Duration `json:"lockout_max_cooldown"`
	LockoutClearOnSuccess   *bool          `json:"lockout_clear_on_success"`

	FingerprintGranularity string `json:"fingerprint_granularity"`
	FingerprintSoftFail    *bool  `json:"fingerprint_soft_fail"`

	DelayMin timex.Duration `json:"delay_min"`
	DelayMax timex.Duration `json:"delay_max"`

	GeoDBPath   string         `json:"geo_db_path"`
	GeoCacheTTL timex.Duration `json:"geo_cache_ttl"`

	CleanupInterval timex.Duration `json:"cleanup_interval"`
	AuditExportAge  timex.Duration `json:"audit_export_age"`
	ArchiveEnabled  *bool          `json:"archive_enabled"`
	S3RootUser      string         `json:"s3_root_user"`
	S3RootPassword  string         `json:"s3_root_password"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flags; if
// neither is set, no JSON file is loaded. Unreadable or invalid files
// panic, matching flag handling.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddr, c.EndpointAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setBool(&config.DevMode, c.DevMode)

	setString(&config.SiteName, c.SiteName)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.LinkBaseURL, c.LinkBaseURL)

	setDuration(&config.TokenTTL, c.TokenTTL)
	setDuration(&config.SessionSlide, c.SessionSlide)
	setDuration(&config.SessionAbsolute, c.SessionAbsolute)

	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	setInt(&config.EmailSoftLimit, c.EmailSoftLimit)
	setInt(&config.EmailHardLimit, c.EmailHardLimit)
	setInt(&config.IPSoftLimit, c.IPSoftLimit)
	setInt(&config.IPHardLimit, c.IPHardLimit)
	setInt(&config.EmailIPSoftLimit, c.EmailIPSoftLimit)
	setInt(&config.EmailIPHardLimit, c.EmailIPHardLimit)

	setInt(&config.LockoutFailureThreshold, c.LockoutFailureThreshold)
	setDuration(&config.LockoutCooldown, c.LockoutCooldown)
	setBool(&config.LockoutExponential, c.LockoutExponential)
	setDuration(&config.LockoutMaxCooldown, c.LockoutMaxCooldown)
	setBool(&config.LockoutClearOnSuccess, c.LockoutClearOnSuccess)

	setString(&config.FingerprintGranularity, c.FingerprintGranularity)
	setBool(&config.FingerprintSoftFail, c.FingerprintSoftFail)

	setDuration(&config.DelayMin, c.DelayMin)
	setDuration(&config.DelayMax, c.DelayMax)

	setString(&config.GeoDBPath, c.GeoDBPath)
	setDuration(&config.GeoCacheTTL, c.GeoCacheTTL)

	setDuration(&config.CleanupInterval, c.CleanupInterval)
	setDuration(&config.AuditExportAge, c.AuditExportAge)
	setBool(&config.ArchiveEnabled, c.ArchiveEnabled)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
