package catalog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"btctrack/pkg/models"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	store, err := Open(filepath.Join(s.T().TempDir(), "catalog.db"))
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) endpoint() models.Endpoint {
	return models.Endpoint{Host: "electrum.example.org", Port: 50002, TLS: true}
}

func (s *StoreTestSuite) TestUpsertAndList() {
	s.Require().NoError(s.store.UpsertServer(s.endpoint(), models.TierConfigured))
	s.Require().NoError(s.store.UpsertServer(models.Endpoint{Host: "plain.example.org", Port: 50001}, models.TierDiscovered))

	endpoints, tiers, err := s.store.Servers()
	s.Require().NoError(err)
	s.Require().Len(endpoints, 2)
	s.Equal(s.endpoint(), endpoints[0])
	s.Equal(models.TierConfigured, tiers[0])
	s.Equal(models.TierDiscovered, tiers[1])
}

func (s *StoreTestSuite) TestUpsertRaisesTierOnly() {
	s.Require().NoError(s.store.UpsertServer(s.endpoint(), models.TierDiscovered))
	s.Require().NoError(s.store.UpsertServer(s.endpoint(), models.TierConfigured))

	_, tiers, err := s.store.Servers()
	s.Require().NoError(err)
	s.Require().Len(tiers, 1)
	s.Equal(models.TierConfigured, tiers[0])

	// A later discovered-tier sighting must not demote it.
	s.Require().NoError(s.store.UpsertServer(s.endpoint(), models.TierDiscovered))
	_, tiers, err = s.store.Servers()
	s.Require().NoError(err)
	s.Equal(models.TierConfigured, tiers[0])
}

func (s *StoreTestSuite) TestRecordProbeAndHistory() {
	result := models.ProbeResult{
		Endpoint: s.endpoint(),
		OK:       true,
		Latency:  120 * time.Millisecond,
		Features: []string{"tls", "protocol/1.4"},
	}
	s.Require().NoError(s.store.RecordProbe(result))
	s.Require().NoError(s.store.RecordProbe(models.ProbeResult{
		Endpoint: s.endpoint(),
		Err:      errors.New("connection refused"),
	}))

	records, err := s.store.ProbeHistory(s.endpoint(), 10)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	// Newest first.
	s.False(records[0].OK)
	s.Equal("connection refused", records[0].Error)
	s.True(records[1].OK)
	s.Equal(int64(120), records[1].Latency)
	s.Equal([]string{"tls", "protocol/1.4"}, records[1].Features)

	// The probe auto-registered the endpoint as discovered.
	_, tiers, err := s.store.Servers()
	s.Require().NoError(err)
	s.Require().Len(tiers, 1)
	s.Equal(models.TierDiscovered, tiers[0])
}

func (s *StoreTestSuite) TestProbeHistoryLimit() {
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.RecordProbe(models.ProbeResult{Endpoint: s.endpoint(), OK: true}))
	}

	records, err := s.store.ProbeHistory(s.endpoint(), 3)
	s.Require().NoError(err)
	s.Len(records, 3)
}

func (s *StoreTestSuite) TestProbeHistoryUnknownServer() {
	_, err := s.store.ProbeHistory(models.Endpoint{Host: "nobody.example.org", Port: 50002}, 10)
	s.ErrorIs(err, ErrServerNotFound)
}

func (s *StoreTestSuite) TestPrune() {
	s.Require().NoError(s.store.RecordProbe(models.ProbeResult{Endpoint: s.endpoint(), OK: true}))

	// A generous retention keeps the fresh probe.
	s.Require().NoError(s.store.Prune(time.Hour))
	records, err := s.store.ProbeHistory(s.endpoint(), 10)
	s.Require().NoError(err)
	s.Len(records, 1)

	// A negative retention ages everything out.
	s.Require().NoError(s.store.Prune(-time.Hour))
	records, err = s.store.ProbeHistory(s.endpoint(), 10)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *StoreTestSuite) TestReopenKeepsData() {
	path := filepath.Join(s.T().TempDir(), "catalog.db")
	store, err := Open(path)
	s.Require().NoError(err)
	s.Require().NoError(store.UpsertServer(s.endpoint(), models.TierConfigured))
	s.Require().NoError(store.Close())

	reopened, err := Open(path)
	s.Require().NoError(err)
	defer func() {
		_ = reopened.Close()
	}()

	endpoints, _, err := reopened.Servers()
	s.Require().NoError(err)
	s.Require().Len(endpoints, 1)
	s.Equal(s.endpoint(), endpoints[0])
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
