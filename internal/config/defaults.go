package config

import (
	"os"
	"path/filepath"
)

// NewDefaultConfig creates a new Config with default values matching the
// behavior of a freshly opened folder: 600x600 thumbnails, 4K previews,
// 1 hour rendition TTL and a 30-file trash cap.
func NewDefaultConfig() Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}

	return Config{
		Core: Core{
			MarkedDirName: "_marked_images",
			TrashDirName:  "_trash",
			TrashCapacity: 30,
			ImageExts: []string{
				".jpg", ".jpeg", ".png", ".gif", ".bmp", ".hif", ".heic",
				".cr3", ".cr2", ".nef", ".arw", ".dng",
			},
			RawExts: []string{
				".cr3", ".cr2", ".nef", ".arw", ".dng",
			},
			ExcludeGlobs: []string{
				// Finder drops these everywhere
				".DS_Store",
				"._*",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
		Cache: Cache{
			Dir:               filepath.Join(cacheDir, "image-manager"),
			TTL:               "1h",
			MaxDiskSize:       "500MB",
			ThumbnailWidth:    600,
			ThumbnailHeight:   600,
			PreviewWidth:      3840,
			PreviewHeight:     2160,
			Quality:           95,
			DecodeTimeout:     "30s",
			DecodeConcurrency: 2,
			RawTool:           []string{"dcraw", "-c", "-w", "-W", "-T", "{src}"},
			HeifTool:          []string{"magick", "{src}", "png:-"},
		},
		Server: Server{
			Addr: "127.0.0.1:5000",
		},
	}
}
