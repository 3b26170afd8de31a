package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	osWindows = "windows"
	osDarwin  = "darwin"
	osAndroid = "android"

	bundleID = "com.freely.player"
)

// GetDataDir returns the platform-specific data directory for the player.
func GetDataDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Freely"), nil
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming", "Freely"), nil
	case osDarwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", bundleID), nil
	case osAndroid:
		if androidData := os.Getenv("ANDROID_DATA"); androidData != "" {
			return filepath.Join(androidData, "data", bundleID, "files"), nil
		}
		return filepath.Join("/data/data", bundleID, "files"), nil
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "freely"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "freely"), nil
	}
}

// GetCacheDir returns the platform-specific audio cache directory.
func GetCacheDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "Freely", "audio_cache"), nil
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local", "Freely", "audio_cache"), nil
	case osDarwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Caches", bundleID, "audio_cache"), nil
	case osAndroid:
		if androidData := os.Getenv("ANDROID_DATA"); androidData != "" {
			return filepath.Join(androidData, "data", bundleID, "cache", "audio_cache"), nil
		}
		return filepath.Join("/data/data", bundleID, "cache", "audio_cache"), nil
	default:
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "freely", "audio_cache"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".cache", "freely", "audio_cache"), nil
	}
}

// GetConfigDir returns the per-user directory that AudioSettings and the
// application config are persisted under. This deliberately uses the data
// directory on every platform (matching original_source's use of
// dirs::data_dir() "to avoid dev-server file watching issues"), not the
// platform preferences directory.
func GetConfigDir() (string, error) {
	data, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return data, nil
}
