package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flashkv/flashkv"
	"github.com/flashkv/flashkv/internal/flashimg"
)

var rootCmd = &cobra.Command{
	Use:   "flashkv",
	Short: "Flash key-value store CLI",
	Long:  "CLI for managing flash-image backed key-value stores: initialise, read, write, reclaim and inspect.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/flashkv/config.yaml)")
	rootCmd.PersistentFlags().String("image", "", "flash image file (default: flash.img)")
	rootCmd.PersistentFlags().Int("flash-size", 0, "total flash size in bytes (default: 65536)")
	rootCmd.PersistentFlags().Int("region-size", 0, "erase region size in bytes (default: 4096)")

	viper.BindPFlag("image", rootCmd.PersistentFlags().Lookup("image"))
	viper.BindPFlag("flash_size", rootCmd.PersistentFlags().Lookup("flash-size"))
	viper.BindPFlag("region_size", rootCmd.PersistentFlags().Lookup("region-size"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FLASHKV")
	viper.AutomaticEnv()
	viper.SetDefault("image", "flash.img")
	viper.SetDefault("flash_size", 65536)
	viper.SetDefault("region_size", 4096)

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flashkv")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "flashkv")
	}
	return ".flashkv"
}

func imagePath() string { return viper.GetString("image") }

func openImage() (*flashimg.Image, error) {
	return flashimg.Open(imagePath(), viper.GetInt("flash_size"), viper.GetInt("region_size"))
}

func openStore() (*flashimg.Image, *flashkv.Store, error) {
	img, err := openImage()
	if err != nil {
		return nil, nil, err
	}
	store, err := flashkv.New(img, img.Size(), img.RegionSize())
	if err != nil {
		img.Close()
		return nil, nil, err
	}
	return img, store, nil
}
