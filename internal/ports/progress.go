package ports

type Progress interface {
	Step(label string)
	Percent(percent int)
}

type NopProgress struct{}

func (NopProgress) Step(string) {}

func (NopProgress) Percent(int) {}
