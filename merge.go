package symex

// This file implements section 4.8, Merge / Phi (C8): joining multiple
// successor states that reach the same pc into a single successor.

// Merge joins contributors (which must all share the same pc) into a
// single successor, per the six steps of section 4.8. eq receives one
// AssignmentStep (kind AssignPhi) per L1 symbol that differs across
// contributors.
func Merge(contributors []*ExecutionState, eq *Equation) *ExecutionState {
	assert(len(contributors) > 0, "Merge: no contributors")
	if len(contributors) == 1 {
		return contributors[0]
	}
	for _, c := range contributors[1:] {
		assert(c.pc == contributors[0].pc, "Merge: contributors at different pc (%d vs %d)", c.pc, contributors[0].pc)
	}

	out := contributors[0].Fork()

	// Step 1: combine guards by disjunction.
	g := contributors[0].guard
	for _, c := range contributors[1:] {
		g = Or(g, c.guard)
	}
	out.guard = g

	// Steps 2 and 5: walk every L1 key any contributor knows about; either
	// it agrees everywhere (carry the value through) or it needs a phi.
	keys := map[L1Key]bool{}
	for _, c := range contributors {
		for k := range c.level2 {
			keys[k] = true
		}
	}

	newLevel2 := make(map[L1Key]int, len(keys))
	newConstProp := make(map[L1Key]Expr, len(keys))

	for key := range keys {
		versions := make([]int, len(contributors))
		allSameVersion := true
		for i, c := range contributors {
			versions[i] = c.level2[key]
			if i > 0 && versions[i] != versions[0] {
				allSameVersion = false
			}
		}

		allSameConst, constVal := constAgreement(contributors, key)

		// Equal versions still need a phi when the contributors' constant
		// bindings for key differ (or only some of them have one).
		constsDiffer := false
		v0, ok0 := contributors[0].constProp[key]
		for _, c := range contributors[1:] {
			v, ok := c.constProp[key]
			if ok != ok0 || (ok && CompareExpr(v, v0) != 0) {
				constsDiffer = true
			}
		}

		if allSameVersion && !constsDiffer {
			newLevel2[key] = versions[0]
			if allSameConst {
				newConstProp[key] = constVal
			}
			continue
		}

		phiVersion := maxVersion(versions) + 1
		newLevel2[key] = phiVersion
		if allSameConst {
			newConstProp[key] = constVal
		}

		typ := out.types[key]
		ladder := phiLadder(contributors, key, typ)

		sym := &Symbol{Name: key.Name, ThreadID: key.ThreadID, Frame: key.Frame, Version: phiVersion, Level: LevelL2, Typ: typ}
		eq.Append(&AssignmentStep{LHS: sym, RHS: ladder, G: out.guard.Clone(), Kind: AssignPhi})
	}

	out.level2 = newLevel2
	out.constProp = newConstProp

	// Step 3: merge value-sets pointwise.
	vs := contributors[0].valueSet
	for _, c := range contributors[1:] {
		vs = vs.Merge(c.valueSet)
	}
	out.valueSet = vs

	// Step 4: merge loop-iteration counters by maximum.
	merged := make(map[loopKey]int)
	for _, c := range contributors {
		for k, v := range c.loopIterations {
			if v > merged[k] {
				merged[k] = v
			}
		}
	}
	out.loopIterations = merged

	out.reachable = anyReachable(contributors)

	return out
}

func maxVersion(versions []int) int {
	m := versions[0]
	for _, v := range versions[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func anyReachable(contributors []*ExecutionState) bool {
	for _, c := range contributors {
		if c.reachable {
			return true
		}
	}
	return false
}

// constAgreement reports whether every contributor has a constant binding
// for key and all of them are the same constant; it is false when any
// contributor has no binding.
func constAgreement(contributors []*ExecutionState, key L1Key) (bool, Expr) {
	var val Expr
	any := false
	for _, c := range contributors {
		v, ok := c.constProp[key]
		if !ok {
			return false, nil
		}
		if !any {
			val, any = v, true
			continue
		}
		if CompareExpr(v, val) != 0 {
			return false, nil
		}
	}
	return any, val
}

// phiLadder builds the nested if-then-else selection of section 4.8 step
//2: xV+1 <- if g1 then x_at_1 else if g2 then x_at_2 else ... else
// x_previous. The tie-breaker tail is the contributor holding the lowest
// SSA version for key — the one whose path never reassigned it, which is
// therefore equal to the value in force immediately before the branch.
func phiLadder(contributors []*ExecutionState, key L1Key, typ Type) Expr {
	sorted := append([]*ExecutionState{}, contributors...)
	// Put the lowest-version contributor last, as the ladder's tail.
	tailIdx := 0
	for i, c := range sorted {
		if c.level2[key] < sorted[tailIdx].level2[key] {
			tailIdx = i
		}
	}
	tail := sorted[tailIdx]
	sorted = append(sorted[:tailIdx], sorted[tailIdx+1:]...)

	var ladder Expr = &Symbol{Name: key.Name, ThreadID: key.ThreadID, Frame: key.Frame, Version: tail.level2[key], Level: LevelL2, Typ: typ}
	for i := len(sorted) - 1; i >= 0; i-- {
		c := sorted[i]
		val := Expr(&Symbol{Name: key.Name, ThreadID: key.ThreadID, Frame: key.Frame, Version: c.level2[key], Level: LevelL2, Typ: typ})
		if cv, ok := c.constProp[key]; ok {
			val = cv
		}
		ladder = NewIfExpr(c.guard.AsExpression(), val, ladder)
	}
	return ladder
}
