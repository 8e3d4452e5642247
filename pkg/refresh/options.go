package refresh

import (
	"github.com/hondanahq/hondana/pkg/config"
	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// OptionsForJob resolves the effective refresh options for one job. Options
// supplied on the request win outright; otherwise the library's stored
// defaults apply; otherwise a zero pass (all fields, default authority)
// with the cover behavior taken from the user config.
func OptionsForJob(data *models.JobMetadataRefreshData, library *models.Library, userConfig *config.UserConfig) (*metadata.RefreshOptions, error) {
	if len(data.Options) > 0 {
		opts := &metadata.RefreshOptions{}
		if err := json.Unmarshal(data.Options, opts); err != nil {
			return nil, errors.Wrap(err, "parsing request refresh options")
		}
		return opts, nil
	}

	if library != nil && library.RefreshOptions != nil && *library.RefreshOptions != "" {
		opts := &metadata.RefreshOptions{}
		if err := json.Unmarshal([]byte(*library.RefreshOptions), opts); err != nil {
			return nil, errors.Wrap(err, "parsing library refresh options")
		}
		return opts, nil
	}

	opts := &metadata.RefreshOptions{}
	if userConfig != nil {
		opts.RefreshCovers = userConfig.RefreshCoversByDefault
	}
	return opts, nil
}
