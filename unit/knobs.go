package unit

// KnobNames holds the knob names used by the unit layer. Sanitized and wire
// names are both accepted.
type KnobNames struct {
	// SiteList is the site 0 knob listing the sites, e.g. "13,1=430,2=431".
	SiteList string `yaml:"site_list"`
	// NChan is the site 0 total channel count.
	NChan string `yaml:"nchan"`
	// WordSize is the site 0 flag selecting 4-byte samples when set.
	WordSize string `yaml:"word_size"`
	// RemoteDemux is the site 0 flag set when the unit demultiplexes itself.
	RemoteDemux string `yaml:"remote_demux"`
	// Arm, Abort and SoftTrigger are site 0 action knobs written with 1.
	Arm         string `yaml:"arm"`
	Abort       string `yaml:"abort"`
	SoftTrigger string `yaml:"soft_trigger"`
	// Shot is the shot sequence number on ShotSite.
	Shot     string `yaml:"shot"`
	ShotSite int    `yaml:"shot_site"`
	// CalSlope and CalOffset are the per-site calibration vectors. The
	// first CalHeader fields of their value are not coefficients.
	CalSlope  string `yaml:"cal_slope"`
	CalOffset string `yaml:"cal_offset"`
	CalHeader int    `yaml:"cal_header"`
	// AWGActive reports waveform playback on AWGSite.
	AWGActive string `yaml:"awg_active"`
	AWGSite   int    `yaml:"awg_site"`
}

// DefaultKnobNames returns the knob names of an ACQ400 series unit.
func DefaultKnobNames() KnobNames {
	return KnobNames{
		SiteList:    "SITELIST",
		NChan:       "NCHAN",
		WordSize:    "data32",
		RemoteDemux: "data_demux",
		Arm:         "set_arm",
		Abort:       "set_abort",
		SoftTrigger: "soft_trigger",
		Shot:        "shot",
		ShotSite:    1,
		CalSlope:    "AI_CAL_ESLO",
		CalOffset:   "AI_CAL_EOFF",
		CalHeader:   3,
		AWGActive:   "AWG_ACTIVE",
		AWGSite:     1,
	}
}

// merge fills the empty fields of k from d.
func (k KnobNames) merge(d KnobNames) KnobNames {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&k.SiteList, d.SiteList)
	fill(&k.NChan, d.NChan)
	fill(&k.WordSize, d.WordSize)
	fill(&k.RemoteDemux, d.RemoteDemux)
	fill(&k.Arm, d.Arm)
	fill(&k.Abort, d.Abort)
	fill(&k.SoftTrigger, d.SoftTrigger)
	fill(&k.Shot, d.Shot)
	fill(&k.CalSlope, d.CalSlope)
	fill(&k.CalOffset, d.CalOffset)
	fill(&k.AWGActive, d.AWGActive)

	return k
}
