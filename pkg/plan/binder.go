package plan

// BindVariableSets assigns variable set references to instance plans.
//
// With deploy true, every non-ignored instance adopts the deployment's
// current variable set (which the orchestrator may just have advanced).
// With deploy false, each instance re-adopts the set it already had;
// the write is deliberate, so both modes leave the assignment table
// fully populated for the instances they visited.
func (p *Plan) BindVariableSets(deploy bool) {
	current := p.Deployment.CurrentVariableSet()
	if p.Deployment.VariableSetAssignments == nil {
		p.Deployment.VariableSetAssignments = map[string]string{}
	}
	for _, g := range p.Groups {
		for _, ip := range g.Instances {
			if ip.Ignore {
				continue
			}
			if deploy {
				ip.VariableSetID = current.ID
			} else {
				existing := ip.VariableSetID
				ip.VariableSetID = existing
			}
			p.Deployment.VariableSetAssignments[ip.ID] = ip.VariableSetID
		}
	}
}
