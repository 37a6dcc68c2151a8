package file

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/tarun-engg-dpm/offerings/pkg/offers"
)

type catalogConfig struct {
	Offers []*offers.Offer `mapstructure:"offers"`
}

// CatalogService serves offer configurations from a watched file. Edits to
// the file are picked up live; an invalid edit keeps the previous catalog.
type CatalogService struct {
	viper  *viper.Viper
	logger *logrus.Logger

	mux   sync.RWMutex
	index map[string]*offers.Offer
}

func NewCatalogService(file string, logger *logrus.Logger) (*CatalogService, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "error reading offers file")
	}

	cs := &CatalogService{
		viper:  v,
		logger: logger,
	}

	if err := cs.loadOffers(); err != nil {
		return nil, errors.Wrap(err, "error loading offers")
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Infof("offers file changed: %s", e.Name)
		if err := cs.loadOffers(); err != nil {
			logger.Errorf("reloading offers: %v", err)
		}
	})

	return cs, nil
}

func (cs *CatalogService) GetOffer(id string) (*offers.Offer, error) {
	cs.mux.RLock()
	defer cs.mux.RUnlock()

	offer, ok := cs.index[id]
	if !ok {
		return nil, errors.Wrap(offers.ErrUnknownOffer, id)
	}

	return offer, nil
}

func (cs *CatalogService) loadOffers() error {
	var config catalogConfig
	if err := cs.viper.Unmarshal(&config); err != nil {
		return errors.Wrap(err, "error on offers config unmarshal")
	}

	if err := validateOffers(config); err != nil {
		return errors.Wrap(err, "offers file is invalid")
	}

	index := make(map[string]*offers.Offer, len(config.Offers))
	for _, offer := range config.Offers {
		index[offer.ID] = offer
	}

	cs.mux.Lock()
	cs.index = index
	cs.mux.Unlock()

	return nil
}

func validateOffers(config catalogConfig) error {
	if len(config.Offers) == 0 {
		return errors.Errorf("there are no offer configs")
	}

	seen := make(map[string]bool, len(config.Offers))

	for i, o := range config.Offers {
		if o.ID == "" {
			return errors.Errorf("offer with empty id (%d)", i)
		}

		if seen[o.ID] {
			return errors.Errorf("duplicated offer id (%s)", o.ID)
		}
		seen[o.ID] = true

		if o.OfferCap < 0 || o.UserCap < 0 {
			return errors.Errorf("negative cap on offer (%s)", o.ID)
		}

		// A cap of zero on an enforced side is a closed quota, which is
		// valid. A cap on an unenforced side is a config mistake.
		switch o.Type {
		case offers.CapBoth:
		case offers.CapGlobalOnly:
			if o.UserCap != 0 {
				return errors.Errorf("offer (%s) is global_only but sets a user cap", o.ID)
			}
		case offers.CapUserOnly:
			if o.OfferCap != 0 {
				return errors.Errorf("offer (%s) is user_only but sets an offer cap", o.ID)
			}
		default:
			return errors.Errorf("invalid cap type (%s) on offer (%s)", o.Type, o.ID)
		}
	}

	return nil
}
