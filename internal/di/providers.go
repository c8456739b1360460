package di

import (
	"streamflix/internal/persistence"
	"streamflix/internal/persistence/interfaces"
	"streamflix/internal/providers"
	"streamflix/internal/structures"
)

func provideLogger(conf *structures.Config) (providers.Logger, func(), error) {
	logger, err := providers.NewLogProvider(conf)
	if err != nil {
		return nil, nil, err
	}
	return logger, logger.Close, nil
}

func provideCompressor(conf *structures.Config) (interfaces.CompressorInterface, func(), error) {
	compressor, err := persistence.NewZstdCompressor(conf)
	if err != nil {
		return nil, nil, err
	}
	return compressor, compressor.Close, nil
}
