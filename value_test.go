package distepi

import "testing"

func TestCompare_SameKindOrdering(t *testing.T) {
	cases := []struct {
		left, right Value
		op          Operator
		want        bool
	}{
		{IntValue(3), IntValue(5), OpLess, true},
		{IntValue(5), IntValue(5), OpEqual, true},
		{NumberValue(1.5), NumberValue(1.5), OpGreaterEqual, true},
		{StringValue("a"), StringValue("b"), OpLess, true},
		{BoolValue(true), BoolValue(false), OpNotEqual, true},
		{IDValue(7), IDValue(7), OpEqual, true},
	}
	for _, c := range cases {
		got, err := Compare(c.left, c.op, c.right)
		if err != nil {
			t.Fatalf("Compare(%v, %v, %v): %s", c.left, c.op, c.right, err)
		}
		if got != c.want {
			t.Errorf("Compare(%v, %v, %v) = %v, want %v", c.left, c.op, c.right, got, c.want)
		}
	}
}

func TestCompare_CrossKindMismatchIsFalse(t *testing.T) {
	got, err := Compare(IntValue(1), OpEqual, StringValue("1"))
	if err != nil {
		t.Fatalf("Compare: %s", err)
	}
	if got {
		t.Error("expected cross-kind comparison to be false, not an error")
	}
}

func TestCompare_TraitDataContainsTraitValue(t *testing.T) {
	var data, mask Trait
	data.SetBit(1, true)
	data.SetBit(3, true)
	mask.SetBit(1, true)

	got, err := Compare(TraitDataValue(data), OpEqual, TraitValueValue(mask))
	if err != nil {
		t.Fatalf("Compare: %s", err)
	}
	if !got {
		t.Error("expected trait-data to contain trait-value's set bits")
	}

	mask.SetBit(5, true) // a bit data does not have
	got, err = Compare(TraitDataValue(data), OpEqual, TraitValueValue(mask))
	if err != nil {
		t.Fatalf("Compare: %s", err)
	}
	if got {
		t.Error("expected containment to fail once the mask has a bit data lacks")
	}
}

func TestCompare_ListOperatorRejected(t *testing.T) {
	if _, err := Compare(IntValue(1), OpIn, IntValue(1)); err == nil {
		t.Error("expected Compare to reject a list operator")
	}
}

func TestCompareList_InAndNotIn(t *testing.T) {
	list := ValueList{IntValue(1), IntValue(2), IntValue(3)}
	ok, err := CompareList(IntValue(2), OpIn, list)
	if err != nil || !ok {
		t.Fatalf("expected 2 in [1,2,3], got (%v, %v)", ok, err)
	}
	ok, err = CompareList(IntValue(9), OpNotIn, list)
	if err != nil || !ok {
		t.Fatalf("expected 9 not in [1,2,3], got (%v, %v)", ok, err)
	}
}

func TestCompareList_ScalarOperatorRejected(t *testing.T) {
	if _, err := CompareList(IntValue(1), OpEqual, ValueList{IntValue(1)}); err == nil {
		t.Error("expected CompareList to reject a scalar operator")
	}
}

func TestValueList_Contains(t *testing.T) {
	list := ValueList{IntValue(1), IntValue(2)}
	if !list.contains(IntValue(2)) {
		t.Error("expected list to contain 2")
	}
	if list.contains(IntValue(3)) {
		t.Error("expected list not to contain 3")
	}
}

func TestWriteOperator_Apply_Assign(t *testing.T) {
	got, err := WriteAssign.Apply(IntValue(1), StringValue("anything"))
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	if got.Kind != KindString || got.Str != "anything" {
		t.Errorf("expected assign to replace the target wholesale, got %+v", got)
	}
}

func TestWriteOperator_Apply_Arithmetic(t *testing.T) {
	cases := []struct {
		op      WriteOperator
		current Value
		operand Value
		want    int64
	}{
		{WriteAdd, IntValue(2), IntValue(3), 5},
		{WriteSub, IntValue(5), IntValue(3), 2},
		{WriteMul, IntValue(4), IntValue(3), 12},
		{WriteDiv, IntValue(10), IntValue(2), 5},
	}
	for _, c := range cases {
		got, err := c.op.Apply(c.current, c.operand)
		if err != nil {
			t.Fatalf("Apply(%v): %s", c.op, err)
		}
		if got.Int != c.want {
			t.Errorf("Apply(%v) = %d, want %d", c.op, got.Int, c.want)
		}
	}
}

func TestWriteOperator_Apply_PreservesNumberKind(t *testing.T) {
	got, err := WriteAdd.Apply(NumberValue(1.5), NumberValue(0.5))
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	if got.Kind != KindNumber || got.Number != 2.0 {
		t.Errorf("expected a Number-kind result of 2.0, got %+v", got)
	}
}

func TestWriteOperator_Apply_NonNumericTargetErrors(t *testing.T) {
	if _, err := WriteAdd.Apply(StringValue("x"), IntValue(1)); err == nil {
		t.Error("expected an error applying an arithmetic operator to a non-numeric target")
	}
}

func TestSortValueList_OrdersAscending(t *testing.T) {
	list := ValueList{IntValue(3), IntValue(1), IntValue(2)}
	sorted := SortValueList(list)
	want := []int64{1, 2, 3}
	for i, w := range want {
		if sorted[i].Int != w {
			t.Fatalf("sorted = %v, want %v", sorted, want)
		}
	}
	// SortValueList must not mutate its input.
	if list[0].Int != 3 {
		t.Error("expected SortValueList to leave the input slice untouched")
	}
}
