package env

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

// Files returns the env files in the loading order, the first file takes precedence.
func Files() []string {
	return []string{".env.local", ".env"}
}

// LoadDotEnv loads envs from ".env" files if they exist. Existing envs take precedence.
func LoadDotEnv(ctx context.Context, logger log.Logger, osEnvs *Map, dirs []string) *Map {
	envs := osEnvs.Clone()

	for _, dir := range dirs {
		for _, file := range Files() {
			path := filepath.Join(dir, file)
			info, err := os.Stat(path)
			switch {
			case err == nil && info.IsDir():
				// Expected file found dir
				continue
			case err != nil && os.IsNotExist(err):
				continue
			case err != nil:
				logger.Warnf(ctx, `cannot check if path "%s" exists: %s`, path, err)
				continue
			}

			fileEnvs, err := LoadEnvFile(path)
			if err != nil {
				logger.Warn(ctx, err.Error())
				continue
			}
			logger.Infof(ctx, `loaded env file "%s"`, path)

			// Merge ENVs, existing keys take precedence.
			envs.Merge(fileEnvs, false)
		}
	}

	return envs
}

func LoadEnvFile(path string) (*Map, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot read env file "%s"`, path)
	}

	envs, err := LoadEnvString(string(content))
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot parse env file "%s"`, path)
	}

	return envs, nil
}

func LoadEnvString(str string) (*Map, error) {
	envsMap, err := godotenv.Unmarshal(str)
	if err != nil {
		return nil, err
	}

	return FromMap(envsMap), nil
}
