package posting

import (
	"context"
	"fmt"

	"github.com/brc/transport-ledger/documents"
	"github.com/brc/transport-ledger/ledger"
)

// fuelRule handles fuel allocations: the wallet is debited whatever the
// vehicle, and only own vehicles carry the cost as vehicle_expense.
// wallet_credit transactions belong to the cash entry that created them and
// cannot be edited here.
type fuelRule struct{}

func (fuelRule) Ref(doc documents.Document) ledger.SourceRef {
	return ledger.SourceRef{Type: ledger.SourceFuelTransaction, ID: doc.GetMeta().ID}
}

func (fuelRule) Load(ctx context.Context, s Store, id string) (documents.Document, error) {
	ft, err := s.GetFuelTransaction(ctx, id)
	if err != nil || ft == nil {
		return nil, err
	}
	return ft, nil
}

func (fuelRule) Prepare(_ context.Context, _ Store, prev, next documents.Document) error {
	if err := managedByCashEntry(prev); err != nil {
		return err
	}
	ft, err := as[*documents.FuelTransaction](next, ledger.SourceFuelTransaction)
	if err != nil {
		return err
	}
	ft.SourceID = ""
	return ft.Validate()
}

func (r fuelRule) Derive(ctx context.Context, s Store, doc documents.Document) (*Derivation, error) {
	ft, err := as[*documents.FuelTransaction](doc, ledger.SourceFuelTransaction)
	if err != nil {
		return nil, err
	}
	if ft.Kind == documents.FuelWalletCredit {
		// Posted through its cash entry.
		return &Derivation{Source: r.Ref(ft)}, nil
	}
	wallet, err := requireWallet(ctx, s, ft.WalletID)
	if err != nil {
		return nil, err
	}
	vehicle, err := requireVehicle(ctx, s, ft.VehicleNo)
	if err != nil {
		return nil, err
	}

	l := newLines(r.Ref(ft), ft, ft.ID, ft.Date)
	l.vehicleNo = vehicle.VehicleNo
	l.effect(walletDebit{WalletID: wallet.ID, Amount: ft.Amount})
	if vehicle.IsOwn() {
		desc := ft.Description
		if desc == "" {
			desc = fmt.Sprintf("Fuel from %s", wallet.Name)
		}
		l.debit(ledger.LedgerVehicleExpense, ledger.SuffixFuel, vehicle.VehicleNo, desc, ft.Amount)
	}
	return l.d, nil
}

// Unwind returns the allocated amount to the wallet.
func (fuelRule) Unwind(ctx context.Context, s Store, prev documents.Document) error {
	ft := prev.(*documents.FuelTransaction)
	if ft.Kind != documents.FuelAllocation {
		return nil
	}
	_, err := s.AdjustFuelWalletBalance(ctx, ft.WalletID, ft.Amount)
	return err
}

func (fuelRule) CheckDelete(_ context.Context, _ Store, prev documents.Document) error {
	return managedByCashEntry(prev)
}

func managedByCashEntry(prev documents.Document) error {
	if prev == nil {
		return nil
	}
	if ft := prev.(*documents.FuelTransaction); ft.Kind == documents.FuelWalletCredit {
		return &ledger.InvalidCategoryError{Category: string(ft.Kind),
			Reason: fmt.Sprintf("created by cash entry %s; edit that entry instead", ft.SourceID)}
	}
	return nil
}

func (fuelRule) Save(ctx context.Context, s Store, doc documents.Document) error {
	return s.SaveFuelTransaction(ctx, doc.(*documents.FuelTransaction))
}

func (fuelRule) Delete(ctx context.Context, s Store, prev documents.Document) error {
	return s.DeleteFuelTransaction(ctx, prev.GetMeta().ID)
}
