package dice

// SequenceRoller returns scripted totals in order, then repeats the last
// one. Useful for deterministic initiative in tests.
type SequenceRoller struct {
	Totals []int
	next   int
}

// Roll returns the next scripted total; count/sides/bonus are ignored.
func (s *SequenceRoller) Roll(count, sides, bonus int) (int, error) {
	if len(s.Totals) == 0 {
		return 0, nil
	}
	if s.next >= len(s.Totals) {
		return s.Totals[len(s.Totals)-1], nil
	}
	v := s.Totals[s.next]
	s.next++
	return v, nil
}
