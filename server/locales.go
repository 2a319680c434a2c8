package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"supergraph/utils"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// InitI18n loads the built translations and installs them as the global bundle
func InitI18n() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	if err := LoadTranslations(bundle, findLocalesDir()); err != nil {
		utils.Logger.Error("Failed to load translations", zap.Error(err))
		return nil, err
	}

	utils.SetI18nBundle(bundle)
	utils.Logger.Info("Translations loaded successfully",
		zap.Int("languages", len(bundle.LanguageTags())))
	return bundle, nil
}

// LoadTranslations загружает все JSON файлы локализации из dir
func LoadTranslations(bundle *i18n.Bundle, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Без переводов ответы содержат идентификаторы сообщений
		utils.Logger.Warn("Locales build directory not found", zap.String("path", dir))
		return nil
	}

	utils.Logger.Debug("Loading translations from directory", zap.String("path", dir))

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = bundle.ParseMessageFileBytes(data, path)
		return err
	})
}

// findLocalesDir находит директорию собранных локализаций
func findLocalesDir() string {
	if dir := os.Getenv("LOCALES_DIR"); dir != "" {
		return dir
	}

	paths := []string{
		"locales/build",    // запуск из корня репозитория
		"../locales/build", // тесты пакетов первого уровня
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "locales/build"
}
