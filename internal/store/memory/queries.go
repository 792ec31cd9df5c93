package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
)

type tx struct {
	state    *state
	readOnly bool
	now      func() time.Time
}

func (t *tx) writable() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (t *tx) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	customer, ok := t.state.customers[customerID]
	if !ok {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	return customer, nil
}

func (t *tx) GetCustomerByNationalID(ctx context.Context, nationalID string) (models.Customer, error) {
	for _, customer := range t.state.customers {
		if customer.NationalID == nationalID {
			return customer, nil
		}
	}
	return models.Customer{}, store.ErrCustomerNotFound
}

func (t *tx) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	customers := make([]models.Customer, 0, len(t.state.customers))
	for _, customer := range t.state.customers {
		customers = append(customers, customer)
	}
	sort.Slice(customers, func(i, j int) bool {
		if customers[i].Name != customers[j].Name {
			return customers[i].Name < customers[j].Name
		}
		return customers[i].CustomerID < customers[j].CustomerID
	})
	return customers, nil
}

func (t *tx) InsertCustomer(ctx context.Context, customer models.Customer) (models.Customer, error) {
	if err := t.writable(); err != nil {
		return models.Customer{}, err
	}
	if customer.CustomerID == "" {
		customer.CustomerID = uuid.NewString()
	}
	if t.nationalIDTaken(customer.NationalID, customer.CustomerID) {
		return models.Customer{}, store.ErrDuplicateNationalID
	}
	now := t.now()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	t.state.customers[customer.CustomerID] = customer
	return customer, nil
}

func (t *tx) UpdateCustomer(ctx context.Context, customer models.Customer) (models.Customer, error) {
	if err := t.writable(); err != nil {
		return models.Customer{}, err
	}
	existing, ok := t.state.customers[customer.CustomerID]
	if !ok {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	if t.nationalIDTaken(customer.NationalID, customer.CustomerID) {
		return models.Customer{}, store.ErrDuplicateNationalID
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = t.now()
	t.state.customers[customer.CustomerID] = customer
	return customer, nil
}

// DeleteCustomer removes the customer together with all of their turns.
func (t *tx) DeleteCustomer(ctx context.Context, customerID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.customers[customerID]; !ok {
		return store.ErrCustomerNotFound
	}
	delete(t.state.customers, customerID)
	for id, turn := range t.state.turns {
		if turn.CustomerID == customerID {
			delete(t.state.turns, id)
		}
	}
	return nil
}

func (t *tx) nationalIDTaken(nationalID, exceptID string) bool {
	for id, customer := range t.state.customers {
		if id != exceptID && customer.NationalID == nationalID {
			return true
		}
	}
	return false
}

func (t *tx) GetStaff(ctx context.Context, staffID string) (models.Staff, error) {
	staff, ok := t.state.staff[staffID]
	if !ok {
		return models.Staff{}, store.ErrStaffNotFound
	}
	return staff, nil
}

func (t *tx) GetStaffByEmail(ctx context.Context, email string) (models.Staff, error) {
	for _, staff := range t.state.staff {
		if strings.EqualFold(staff.Email, email) {
			return staff, nil
		}
	}
	return models.Staff{}, store.ErrStaffNotFound
}

func (t *tx) ListStaff(ctx context.Context) ([]models.Staff, error) {
	list := make([]models.Staff, 0, len(t.state.staff))
	for _, staff := range t.state.staff {
		list = append(list, staff)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].StaffID < list[j].StaffID
	})
	return list, nil
}

func (t *tx) CountStaff(ctx context.Context) (int, error) {
	return len(t.state.staff), nil
}

func (t *tx) InsertStaff(ctx context.Context, staff models.Staff) (models.Staff, error) {
	if err := t.writable(); err != nil {
		return models.Staff{}, err
	}
	if staff.StaffID == "" {
		staff.StaffID = uuid.NewString()
	}
	if t.emailTaken(staff.Email, staff.StaffID) {
		return models.Staff{}, store.ErrDuplicateEmail
	}
	now := t.now()
	staff.CreatedAt = now
	staff.UpdatedAt = now
	t.state.staff[staff.StaffID] = staff
	return staff, nil
}

func (t *tx) UpdateStaff(ctx context.Context, staff models.Staff) (models.Staff, error) {
	if err := t.writable(); err != nil {
		return models.Staff{}, err
	}
	existing, ok := t.state.staff[staff.StaffID]
	if !ok {
		return models.Staff{}, store.ErrStaffNotFound
	}
	if t.emailTaken(staff.Email, staff.StaffID) {
		return models.Staff{}, store.ErrDuplicateEmail
	}
	staff.CreatedAt = existing.CreatedAt
	staff.UpdatedAt = t.now()
	t.state.staff[staff.StaffID] = staff
	return staff, nil
}

func (t *tx) DeleteStaff(ctx context.Context, staffID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.staff[staffID]; !ok {
		return store.ErrStaffNotFound
	}
	delete(t.state.staff, staffID)
	for id, module := range t.state.modules {
		if module.HeldBy(staffID) {
			module.AgentID = nil
			t.state.modules[id] = module
		}
	}
	for id, turn := range t.state.turns {
		if turn.CompletedBy != nil && *turn.CompletedBy == staffID {
			turn.CompletedBy = nil
			t.state.turns[id] = turn
		}
	}
	return nil
}

func (t *tx) emailTaken(email, exceptID string) bool {
	for id, staff := range t.state.staff {
		if id != exceptID && strings.EqualFold(staff.Email, email) {
			return true
		}
	}
	return false
}

func (t *tx) GetModule(ctx context.Context, moduleID string) (models.Module, error) {
	module, ok := t.state.modules[moduleID]
	if !ok {
		return models.Module{}, store.ErrModuleNotFound
	}
	return module, nil
}

// LockModule is GetModule: Update already runs under an exclusive lock.
func (t *tx) LockModule(ctx context.Context, moduleID string) (models.Module, error) {
	return t.GetModule(ctx, moduleID)
}

func (t *tx) ListModules(ctx context.Context) ([]models.Module, error) {
	list := make([]models.Module, 0, len(t.state.modules))
	for _, module := range t.state.modules {
		list = append(list, module)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ModuleID < list[j].ModuleID
	})
	return list, nil
}

func (t *tx) ModuleByAgent(ctx context.Context, staffID string) (models.Module, bool, error) {
	for _, module := range t.state.modules {
		if module.HeldBy(staffID) {
			return module, true, nil
		}
	}
	return models.Module{}, false, nil
}

func (t *tx) InsertModule(ctx context.Context, module models.Module) (models.Module, error) {
	if err := t.writable(); err != nil {
		return models.Module{}, err
	}
	if module.ModuleID == "" {
		module.ModuleID = uuid.NewString()
	}
	if err := t.checkModule(module); err != nil {
		return models.Module{}, err
	}
	now := t.now()
	module.CreatedAt = now
	module.UpdatedAt = now
	t.state.modules[module.ModuleID] = module
	return module, nil
}

func (t *tx) UpdateModule(ctx context.Context, module models.Module) (models.Module, error) {
	if err := t.writable(); err != nil {
		return models.Module{}, err
	}
	existing, ok := t.state.modules[module.ModuleID]
	if !ok {
		return models.Module{}, store.ErrModuleNotFound
	}
	if err := t.checkModule(module); err != nil {
		return models.Module{}, err
	}
	module.CreatedAt = existing.CreatedAt
	module.UpdatedAt = t.now()
	t.state.modules[module.ModuleID] = module
	return module, nil
}

func (t *tx) DeleteModule(ctx context.Context, moduleID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.modules[moduleID]; !ok {
		return store.ErrModuleNotFound
	}
	delete(t.state.modules, moduleID)
	for id, turn := range t.state.turns {
		if turn.ModuleID != nil && *turn.ModuleID == moduleID {
			turn.ModuleID = nil
			t.state.turns[id] = turn
		}
	}
	return nil
}

// checkModule mirrors the unique constraints on module name and agent.
func (t *tx) checkModule(module models.Module) error {
	for id, other := range t.state.modules {
		if id == module.ModuleID {
			continue
		}
		if strings.EqualFold(other.Name, module.Name) {
			return store.ErrDuplicateModuleName
		}
		if module.AgentID != nil && other.HeldBy(*module.AgentID) {
			return store.ErrStaffHoldsModule
		}
	}
	if module.AgentID != nil {
		if _, ok := t.state.staff[*module.AgentID]; !ok {
			return store.ErrStaffNotFound
		}
	}
	return nil
}

func (t *tx) GetTurn(ctx context.Context, turnID string) (models.Turn, error) {
	turn, ok := t.state.turns[turnID]
	if !ok {
		return models.Turn{}, store.ErrTurnNotFound
	}
	return turn, nil
}

func (t *tx) LockTurn(ctx context.Context, turnID string) (models.Turn, error) {
	return t.GetTurn(ctx, turnID)
}

func (t *tx) ListTurns(ctx context.Context, filter store.TurnFilter) ([]models.Turn, error) {
	var turns []models.Turn
	for _, turn := range t.state.turns {
		if matches(turn, filter) {
			turns = append(turns, turn)
		}
	}
	sortTurns(turns)
	if filter.Limit > 0 && len(turns) > filter.Limit {
		turns = turns[:filter.Limit]
	}
	return turns, nil
}

func (t *tx) LockOldestWaitingTurn(ctx context.Context, serviceDate string) (models.Turn, bool, error) {
	turns, err := t.ListTurns(ctx, store.TurnFilter{Statuses: []string{models.StatusWaiting}, ServiceDate: serviceDate, Limit: 1})
	if err != nil {
		return models.Turn{}, false, err
	}
	if len(turns) == 0 {
		return models.Turn{}, false, nil
	}
	return turns[0], true, nil
}

func (t *tx) ExpireWaitingTurns(ctx context.Context, before string, at time.Time) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	expired := 0
	for id, turn := range t.state.turns {
		if turn.Status != models.StatusWaiting || turn.ServiceDate >= before {
			continue
		}
		cancelledAt := at
		turn.Status = models.StatusCancelled
		turn.CancelledAt = &cancelledAt
		t.state.turns[id] = turn
		expired++
	}
	return expired, nil
}

func (t *tx) ActiveTurnForCustomer(ctx context.Context, customerID string) (models.Turn, bool, error) {
	for _, turn := range t.state.turns {
		if turn.CustomerID == customerID && models.IsActiveStatus(turn.Status) {
			return turn, true, nil
		}
	}
	return models.Turn{}, false, nil
}

func (t *tx) ServingTurnForModule(ctx context.Context, moduleID string) (models.Turn, bool, error) {
	for _, turn := range t.state.turns {
		if turn.Status == models.StatusBeingServed && turn.ModuleID != nil && *turn.ModuleID == moduleID {
			return turn, true, nil
		}
	}
	return models.Turn{}, false, nil
}

func (t *tx) CountTurnsByStatus(ctx context.Context, serviceDate string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, turn := range t.state.turns {
		if turn.ServiceDate == serviceDate {
			counts[turn.Status]++
		}
	}
	return counts, nil
}

func (t *tx) InsertTurn(ctx context.Context, turn models.Turn) (models.Turn, error) {
	if err := t.writable(); err != nil {
		return models.Turn{}, err
	}
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}
	if _, ok := t.state.customers[turn.CustomerID]; !ok {
		return models.Turn{}, store.ErrCustomerNotFound
	}
	for _, other := range t.state.turns {
		if other.ServiceDate == turn.ServiceDate && other.TicketCode == turn.TicketCode {
			return models.Turn{}, store.ErrConflict
		}
	}
	if err := t.checkTurn(turn); err != nil {
		return models.Turn{}, err
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = t.now()
	}
	t.state.turns[turn.TurnID] = turn
	return turn, nil
}

func (t *tx) UpdateTurn(ctx context.Context, turn models.Turn) (models.Turn, error) {
	if err := t.writable(); err != nil {
		return models.Turn{}, err
	}
	existing, ok := t.state.turns[turn.TurnID]
	if !ok {
		return models.Turn{}, store.ErrTurnNotFound
	}
	if err := t.checkTurn(turn); err != nil {
		return models.Turn{}, err
	}
	turn.CreatedAt = existing.CreatedAt
	t.state.turns[turn.TurnID] = turn
	return turn, nil
}

// checkTurn mirrors the partial unique indexes: one active turn per customer
// and one serving turn per module.
func (t *tx) checkTurn(turn models.Turn) error {
	for id, other := range t.state.turns {
		if id == turn.TurnID {
			continue
		}
		if models.IsActiveStatus(turn.Status) && other.CustomerID == turn.CustomerID && models.IsActiveStatus(other.Status) {
			return store.ErrActiveTurnExists
		}
		if turn.Status == models.StatusBeingServed && other.Status == models.StatusBeingServed &&
			turn.ModuleID != nil && other.ModuleID != nil && *turn.ModuleID == *other.ModuleID {
			return store.ErrModuleBusy
		}
	}
	return nil
}

func (t *tx) NextTicketNumber(ctx context.Context, serviceDate string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	t.state.counters[serviceDate]++
	return t.state.counters[serviceDate], nil
}

func matches(turn models.Turn, filter store.TurnFilter) bool {
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, turn.Status) {
		return false
	}
	if filter.ServiceDate != "" && turn.ServiceDate != filter.ServiceDate {
		return false
	}
	if filter.ModuleID != "" && (turn.ModuleID == nil || *turn.ModuleID != filter.ModuleID) {
		return false
	}
	if filter.CustomerID != "" && turn.CustomerID != filter.CustomerID {
		return false
	}
	return true
}

func sortTurns(turns []models.Turn) {
	sort.Slice(turns, func(i, j int) bool {
		a, b := turns[i], turns[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.ServiceDate != b.ServiceDate {
			return a.ServiceDate < b.ServiceDate
		}
		return a.TicketNumber < b.TicketNumber
	})
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
