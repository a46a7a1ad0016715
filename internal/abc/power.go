package abc

// CycleStart reports whether the driver should actually power up the
// interface for this cycle, decrementing the boot-power debt left by a
// previous slow power-up. Mirrors one_cycle's
// "if (if_cycles_skiped-- == 0) { power up; ... }": debt is consulted
// and decremented first, so cycles are skipped while debt remains and
// power-up resumes only once the debt has been fully paid down.
func (bc *BroadcastChannel) CycleStart() (needsPowerUp bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	wasZero := bc.bootDebtCycles == 0
	if bc.bootDebtCycles > 0 {
		bc.bootDebtCycles--
	}
	return wasZero
}

// RecordPowerUpDuration accounts for how long the just-completed
// power-up took: if it consumed more than one basic cycle, that many
// additional cycles are skipped (no further power-up attempted) until
// the debt is paid down. Call only when CycleStart returned true.
func (bc *BroadcastChannel) RecordPowerUpDuration(elapsedCycles int) {
	if elapsedCycles < 0 {
		elapsedCycles = 0
	}
	bc.mu.Lock()
	bc.bootDebtCycles = elapsedCycles
	bc.mu.Unlock()
}

// BootDebtCycles returns the number of future cycles still owed
// (power-up skipped) from a previous slow power-up.
func (bc *BroadcastChannel) BootDebtCycles() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.bootDebtCycles
}
