package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Download modes accepted by sync.download_mode
const (
	ModeBoth          = "both"
	ModeAlbumsOnly    = "albums_only"
	ModePlaylistsOnly = "playlists_only"
)

// Config represents the application configuration
type Config struct {
	Library    LibraryConfig    `json:"library" mapstructure:"library"`
	Downloader DownloaderConfig `json:"downloader" mapstructure:"downloader"`
	Sync       SyncConfig       `json:"sync" mapstructure:"sync"`
	Sources    []SourceConfig   `json:"sources" mapstructure:"sources"`
	History    HistoryConfig    `json:"history" mapstructure:"history"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// LibraryConfig contains music library layout settings
type LibraryConfig struct {
	BaseFolder         string `json:"base_folder" mapstructure:"base_folder"`
	MusicMountPath     string `json:"music_mount_path" mapstructure:"music_mount_path"`
	M3UFolder          string `json:"m3u_folder" mapstructure:"m3u_folder"`
	RecordFileName     string `json:"record_file_name" mapstructure:"record_file_name"`
	UnsortedFolderName string `json:"unsorted_folder_name" mapstructure:"unsorted_folder_name"`
	EmbedArtwork       bool   `json:"embed_artwork" mapstructure:"embed_artwork"`
	ArtworkSize        int    `json:"artwork_size" mapstructure:"artwork_size"`
	SaveAlbumCover     bool   `json:"save_album_cover" mapstructure:"save_album_cover"`
	AlbumCoverFilename string `json:"album_cover_filename" mapstructure:"album_cover_filename"`
}

// DownloaderConfig contains settings for the external downloader tool
type DownloaderConfig struct {
	Path              string `json:"path" mapstructure:"path"`
	AudioFormat       string `json:"audio_format" mapstructure:"audio_format"`
	TimeoutMetadata   int    `json:"timeout_metadata" mapstructure:"timeout_metadata"`
	TimeoutDownload   int    `json:"timeout_download" mapstructure:"timeout_download"`
	MaxRetries        int    `json:"max_retries" mapstructure:"max_retries"`
	RequestsPerMinute int    `json:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// SyncConfig contains reconciliation run settings
type SyncConfig struct {
	DownloadMode  string `json:"download_mode" mapstructure:"download_mode"`
	ParallelLimit int    `json:"parallel_limit" mapstructure:"parallel_limit"`
}

// SourceConfig references one configured playlist or album.
// Order in the list is significant: when two album sources claim the
// same video in one run, the earlier source wins.
type SourceConfig struct {
	URL  string `json:"url" mapstructure:"url"`
	Name string `json:"name,omitempty" mapstructure:"name"`
}

// HistoryConfig contains run summary persistence settings
type HistoryConfig struct {
	Folder       string `json:"folder" mapstructure:"folder"`
	DatabasePath string `json:"database_path" mapstructure:"database_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = GetConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := ensureConfigDir(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create with defaults
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else if os.IsNotExist(err) {
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Allow environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("YTSHELF")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Library validation
	if c.Library.BaseFolder == "" {
		return fmt.Errorf("library base folder cannot be empty")
	}

	if c.Library.MusicMountPath == "" {
		return fmt.Errorf("music mount path cannot be empty")
	}

	if c.Library.M3UFolder == "" {
		return fmt.Errorf("m3u folder cannot be empty")
	}

	if c.Library.RecordFileName == "" {
		return fmt.Errorf("record file name cannot be empty")
	}

	if strings.ContainsRune(c.Library.RecordFileName, os.PathSeparator) {
		return fmt.Errorf("record file name must not contain path separators: %s", c.Library.RecordFileName)
	}

	if c.Library.UnsortedFolderName == "" {
		return fmt.Errorf("unsorted folder name cannot be empty")
	}

	if c.Library.ArtworkSize < 100 || c.Library.ArtworkSize > 5000 {
		return fmt.Errorf("artwork size must be between 100 and 5000 pixels")
	}

	// Downloader validation
	if c.Downloader.Path == "" {
		return fmt.Errorf("downloader path cannot be empty")
	}

	if c.Downloader.AudioFormat != "mp3" && c.Downloader.AudioFormat != "flac" {
		return fmt.Errorf("invalid audio format: %s (must be mp3 or flac)", c.Downloader.AudioFormat)
	}

	if c.Downloader.TimeoutMetadata < 1 {
		return fmt.Errorf("metadata timeout must be at least 1 second")
	}

	if c.Downloader.TimeoutDownload < 1 {
		return fmt.Errorf("download timeout must be at least 1 second")
	}

	if c.Downloader.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}

	if c.Downloader.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute cannot be negative")
	}

	// Sync validation
	if c.Sync.DownloadMode != ModeBoth && c.Sync.DownloadMode != ModeAlbumsOnly && c.Sync.DownloadMode != ModePlaylistsOnly {
		return fmt.Errorf("invalid download mode: %s (must be both, albums_only or playlists_only)", c.Sync.DownloadMode)
	}

	if c.Sync.ParallelLimit < 1 {
		return fmt.Errorf("parallel limit must be at least 1")
	}

	if c.Sync.ParallelLimit > 32 {
		return fmt.Errorf("parallel limit cannot exceed 32")
	}

	// Source validation
	for i, src := range c.Sources {
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("source %d has an empty url", i)
		}
	}

	// History validation
	if c.History.Folder == "" {
		return fmt.Errorf("history folder cannot be empty")
	}

	if c.History.DatabasePath == "" {
		return fmt.Errorf("history database path cannot be empty")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}

	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}

	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log max age cannot be negative")
	}

	return nil
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	if err := ensureConfigDir(path); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("library", c.Library)
	v.Set("downloader", c.Downloader)
	v.Set("sync", c.Sync)
	v.Set("sources", c.Sources)
	v.Set("history", c.History)
	v.Set("logging", c.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// LedgerPath returns the absolute path of the download record file
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Library.BaseFolder, c.Library.RecordFileName)
}

// MetadataTimeout returns the metadata fetch timeout as a duration
func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Downloader.TimeoutMetadata) * time.Second
}

// DownloadTimeout returns the per-item download timeout as a duration
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Downloader.TimeoutDownload) * time.Second
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Library defaults
	v.SetDefault("library.base_folder", "/music")
	v.SetDefault("library.music_mount_path", "/music")
	v.SetDefault("library.m3u_folder", "/playlists")
	v.SetDefault("library.record_file_name", ".downloaded_videos.txt")
	v.SetDefault("library.unsorted_folder_name", "Unsorted Songs")
	v.SetDefault("library.embed_artwork", true)
	v.SetDefault("library.artwork_size", 1200)
	v.SetDefault("library.save_album_cover", true)
	v.SetDefault("library.album_cover_filename", "folder.png")

	// Downloader defaults
	v.SetDefault("downloader.path", "/binary/yt-dlp")
	v.SetDefault("downloader.audio_format", "mp3")
	v.SetDefault("downloader.timeout_metadata", 120)
	v.SetDefault("downloader.timeout_download", 600)
	v.SetDefault("downloader.max_retries", 3)
	v.SetDefault("downloader.requests_per_minute", 60)

	// Sync defaults
	v.SetDefault("sync.download_mode", ModeBoth)
	v.SetDefault("sync.parallel_limit", 4)

	// History defaults
	v.SetDefault("history.folder", filepath.Join(GetDataDir(), "history"))
	v.SetDefault("history.database_path", filepath.Join(GetDataDir(), "data", "runs.db"))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "file")
	v.SetDefault("logging.file_path", filepath.Join(GetDataDir(), "logs", "ytshelf.log"))
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// ensureConfigDir ensures the configuration directory exists
func ensureConfigDir(configPath string) error {
	dir := filepath.Dir(configPath)
	return os.MkdirAll(dir, 0755)
}

// GetDataDir returns the application data directory
func GetDataDir() string {
	// Check if running in portable mode
	if IsPortableMode() {
		exePath, err := os.Executable()
		if err != nil {
			// Fallback to current directory
			return "."
		}
		return filepath.Dir(exePath)
	}

	return filepath.Join(xdg.DataHome, "ytshelf")
}

// IsPortableMode checks if the application is running in portable mode
func IsPortableMode() bool {
	exePath, err := os.Executable()
	if err != nil {
		return false
	}
	exeDir := filepath.Dir(exePath)
	portableMarker := filepath.Join(exeDir, ".portable")
	_, err = os.Stat(portableMarker)
	return err == nil
}

// GetConfigPath returns the configuration file path based on mode
func GetConfigPath() string {
	if IsPortableMode() {
		exePath, _ := os.Executable()
		exeDir := filepath.Dir(exePath)
		return filepath.Join(exeDir, "config.json")
	}
	return filepath.Join(xdg.ConfigHome, "ytshelf", "config.json")
}
