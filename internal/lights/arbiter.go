package lights

// UpdateAttention replaces the attention request and reprograms the LED.
func (c *Controller) UpdateAttention(state LightState) {
	c.update(IDAttention, state)
}

// UpdateNotification replaces the notification request and reprograms the LED.
func (c *Controller) UpdateNotification(state LightState) {
	c.update(IDNotifications, state)
}

// UpdateBattery replaces the battery request and reprograms the LED.
func (c *Controller) UpdateBattery(state LightState) {
	c.update(IDBattery, state)
}

func (c *Controller) update(slot ID, state LightState) {
	c.mu.Lock()
	switch slot {
	case IDAttention:
		c.attention = state
	case IDNotifications:
		c.notification = state
	case IDBattery:
		c.battery = state
	}
	active, shown := c.arbitrateLocked()
	program := c.programmer.Program(shown)
	c.active = active

	c.unlockAndEmit(Event{
		Light:   slot,
		State:   state,
		Active:  active,
		Program: &program,
	})
}

// arbitrateLocked picks the slot to display: attention, then notification,
// each only when lit. Battery is the fallback and is shown even when dark,
// which turns the LED off.
func (c *Controller) arbitrateLocked() (ID, LightState) {
	switch {
	case c.attention.Lit():
		return IDAttention, c.attention
	case c.notification.Lit():
		return IDNotifications, c.notification
	default:
		return IDBattery, c.battery
	}
}
