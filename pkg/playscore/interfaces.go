package playscore

import (
	"context"

	"github.com/himanishpuri/playscore/pkg/models"
	"github.com/himanishpuri/playscore/pkg/playscore/archive"
)

type Service interface {
	// ConvertOne converts a single archive to output.
	ConvertOne(ctx context.Context, input, output string, overwrite bool) Result
	// MergeAll combines the parts of every parsable input, in order, into one score.
	MergeAll(ctx context.Context, inputs []string, output string, overwrite bool) Result
	// ConvertBatch converts each input next to itself, or to outputOverride
	// when exactly one input is given. An unavailable engine stops the batch.
	ConvertBatch(ctx context.Context, inputs []string, outputOverride string, overwrite bool) BatchResult
	Inspect(path string) archive.Classification
	// InspectBytes classifies an archive already held in memory.
	InspectBytes(data []byte) archive.Classification
	History(limit int) ([]models.Conversion, error)
	// GetConversion returns one history record, or ErrConversionNotFound.
	GetConversion(id string) (*models.Conversion, error)
	DeleteConversion(id string) error
	Close() error
}

type Storage interface {
	RecordConversion(rec models.Conversion) (string, error)
	ListConversions(limit int) ([]models.Conversion, error)
	GetConversion(id string) (*models.Conversion, error)
	DeleteConversion(id string) error
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
