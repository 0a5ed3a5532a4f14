package ride

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"taxi/internal/apperr"
	"taxi/internal/modules/call"
	"taxi/internal/modules/event"
	"taxi/internal/userdir"
)

// memRepo commits a transaction by swapping in the mutated copy, so a failing fn leaves no trace.
type memRepo struct {
	mu      sync.Mutex
	rides   map[int64]Ride
	drivers map[int64]Driver
	nextID  int64
	failTx  error
}

func newMemRepo() *memRepo {
	return &memRepo{rides: map[int64]Ride{}, drivers: map[int64]Driver{}, nextID: 1}
}

func (m *memRepo) addDriver(d Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

func (m *memRepo) addRide(r Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r
	if r.ID >= m.nextID {
		m.nextID = r.ID + 1
	}
}

func (m *memRepo) driver(id int64) Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drivers[id]
}

func (m *memRepo) ride(id int64) (Ride, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	return r, ok
}

func (m *memRepo) rideCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rides)
}

func (m *memRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{rides: map[int64]Ride{}, drivers: map[int64]Driver{}, nextID: m.nextID}
	for k, v := range m.rides {
		tx.rides[k] = v
	}
	for k, v := range m.drivers {
		tx.drivers[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if m.failTx != nil {
		return m.failTx
	}
	m.rides, m.drivers, m.nextID = tx.rides, tx.drivers, tx.nextID
	return nil
}

func (m *memRepo) Ride(_ context.Context, id int64) (*Ride, error) {
	r, ok := m.ride(id)
	if !ok {
		return nil, ErrRideNotFound
	}
	return &r, nil
}

type memTx struct {
	rides   map[int64]Ride
	drivers map[int64]Driver
	nextID  int64
}

func (t *memTx) RideByID(_ context.Context, id int64) (*Ride, error) {
	r, ok := t.rides[id]
	if !ok {
		return nil, ErrRideNotFound
	}
	return &r, nil
}

func (t *memTx) DriverByID(_ context.Context, id int64) (*Driver, error) {
	d, ok := t.drivers[id]
	if !ok {
		return nil, errNoDriver
	}
	return &d, nil
}

func (t *memTx) DriverByUserID(_ context.Context, userID int64) (*Driver, error) {
	for _, d := range t.drivers {
		if d.UserID == userID {
			return &d, nil
		}
	}
	return nil, errNoDriver
}

func (t *memTx) CreateRide(_ context.Context, r *Ride) error {
	r.ID = t.nextID
	t.nextID++
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	t.rides[r.ID] = *r
	return nil
}

func (t *memTx) UpdateRide(_ context.Context, r *Ride) error {
	if _, ok := t.rides[r.ID]; !ok {
		return ErrRideNotFound
	}
	r.UpdatedAt = time.Now()
	t.rides[r.ID] = *r
	return nil
}

func (t *memTx) DeleteRide(_ context.Context, id int64) error {
	delete(t.rides, id)
	return nil
}

func (t *memTx) UpdateDriver(_ context.Context, d *Driver) error {
	if _, ok := t.drivers[d.ID]; !ok {
		return errNoDriver
	}
	d.UpdatedAt = time.Now()
	t.drivers[d.ID] = *d
	return nil
}

type memCalls struct {
	mu    sync.Mutex
	calls map[string]call.Request
}

func newMemCalls(reqs ...call.Request) *memCalls {
	c := &memCalls{calls: map[string]call.Request{}}
	for _, r := range reqs {
		c.calls[r.PassengerID] = r
	}
	return c
}

func (c *memCalls) Take(_ context.Context, passengerID string) (call.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.calls[passengerID]
	if !ok {
		return call.Request{}, call.ErrCallNotFound
	}
	delete(c.calls, passengerID)
	return r, nil
}

func (c *memCalls) Restore(_ context.Context, r call.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.calls[r.PassengerID]; !ok {
		c.calls[r.PassengerID] = r
	}
	return nil
}

func (c *memCalls) has(passengerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.calls[passengerID]
	return ok
}

type memDirectory struct {
	byEmail map[string]userdir.User
	fail    error
}

func newMemDirectory(users ...userdir.User) *memDirectory {
	d := &memDirectory{byEmail: map[string]userdir.User{}}
	for _, u := range users {
		d.byEmail[u.Email] = u
	}
	return d
}

func (d *memDirectory) UserByEmail(_ context.Context, email string) (userdir.User, error) {
	if d.fail != nil {
		return userdir.User{}, d.fail
	}
	u, ok := d.byEmail[email]
	if !ok {
		return userdir.User{}, apperr.Internal("user directory lookup failed", errors.New("404"))
	}
	return u, nil
}

func (d *memDirectory) UserByID(_ context.Context, id int64) (userdir.User, error) {
	if d.fail != nil {
		return userdir.User{}, d.fail
	}
	for _, u := range d.byEmail {
		if u.UserID == id {
			return u, nil
		}
	}
	return userdir.User{}, apperr.Internal("user directory lookup failed", errors.New("404"))
}

// compensatingPublisher mimics event.Publisher: on failure it runs the handler synchronously.
type compensatingPublisher struct {
	mu        sync.Mutex
	published []event.Event
	fail      error
	svc       *Service
}

func (p *compensatingPublisher) Publish(ctx context.Context, e event.Event) error {
	p.mu.Lock()
	fail := p.fail
	if fail == nil {
		p.published = append(p.published, e)
	}
	p.mu.Unlock()
	if fail == nil {
		return nil
	}
	if err := p.svc.Compensate(ctx, e.CompensationCommand()); err != nil {
		return apperr.Internal("publish", errors.Join(fail, err))
	}
	return apperr.Internal("publish", fail)
}

func (p *compensatingPublisher) events() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.published...)
}

var (
	passengerUser = userdir.User{UserID: 1, Name: "Lee", Phone: "010-1111-0000", Email: "p@taxi.com"}
	driverUser    = userdir.User{UserID: 2, Name: "Kim", Phone: "010-2222-0000", Email: "d@taxi.com"}
)

type fixture struct {
	repo  *memRepo
	calls *memCalls
	dir   *memDirectory
	pub   *compensatingPublisher
	svc   *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:  newMemRepo(),
		calls: newMemCalls(),
		dir:   newMemDirectory(passengerUser, driverUser),
		pub:   &compensatingPublisher{},
	}
	f.svc = NewService(f.repo, f.calls, f.dir, f.pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.pub.svc = f.svc
	f.repo.addDriver(Driver{
		ID: 10, UserID: driverUser.UserID, CarNumber: "12A3456", Capacity: 4,
		CarName: "Sonata", License: "LIC-1", PhoneNumber: driverUser.Phone, Status: DriverWaiting,
	})
	return f
}

func (f *fixture) openCall() call.Request {
	r := call.Request{
		PassengerID: passengerUser.Email, StartLat: 50.0, StartLng: 50.0, StartLocation: "Central Station",
		EndLat: 50.05, EndLng: 50.05, EndLocation: "Airport",
	}
	_ = f.calls.Restore(context.Background(), r)
	return r
}

func (f *fixture) setDriverStatus(s DriverStatus) {
	d := f.repo.driver(10)
	d.Status = s
	f.repo.addDriver(d)
}

func (f *fixture) seedRide(id int64, s RideStatus) {
	f.repo.addRide(Ride{
		ID: id, PassengerID: passengerUser.UserID, DriverID: 10, Status: s,
		StartLocation: "Central Station", EndLocation: "Airport",
	})
}
